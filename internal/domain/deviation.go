package domain

import "time"

// DeviationRecord is the historical content of an ingested deviation.
// It is written once at ingestion and never updated.
type DeviationRecord struct {
	ID                 string    `json:"id"`
	ProblemDescription string    `json:"problem_description"`
	RootCause          string    `json:"root_cause"`
	CreatedAt          time.Time `json:"created_at,omitempty"`
}

// DeviationInput is the raw payload accepted for ingestion.
type DeviationInput struct {
	Description string `json:"Description"`
	RootCause   string `json:"Root Cause"`
}

// ProblemDescriptionField is the brainstorming input field that carries the incident text.
const ProblemDescriptionField = "Problem Description and Immediate Action"

// Brainstorming section keys.
const (
	SectionRootCause         = "root_cause"
	SectionCAPA              = "capa"
	SectionCAPAEffectiveness = "capa_effectiveness"
	SectionPAEffectiveness   = "pa_effectiveness"
)
