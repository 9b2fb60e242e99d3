package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/retrieval"
)

// Tool is the MCP tool definition returned by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type tool struct {
	Tool
	call func(ctx context.Context, args json.RawMessage) (any, error)
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textContent(texts ...string) []content {
	out := make([]content, len(texts))
	for i, t := range texts {
		out[i] = content{Type: "text", Text: t}
	}
	return out
}

// decodeArgs unmarshals tool arguments; absent arguments decode as an empty object.
func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid arguments: %v", err)}
	}
	return nil
}

func (s *Server) registry() []tool {
	return []tool{
		{
			Tool: Tool{
				Name:        "search_deviations",
				Description: "Find historical GMP deviations similar to a description",
				InputSchema: json.RawMessage(`{
					"type": "object",
					"properties": {
						"query": {"type": "string", "description": "Deviation description"},
						"top_k": {"type": "integer", "description": "Matches to return (default 3)"}
					},
					"required": ["query"]
				}`),
			},
			call: s.searchDeviations,
		},
		{
			Tool: Tool{
				Name:        "get_deviation",
				Description: "Get the problem description and root cause of a stored deviation",
				InputSchema: json.RawMessage(`{
					"type": "object",
					"properties": {
						"id": {"type": "string", "description": "Deviation ID (DEV-...)"}
					},
					"required": ["id"]
				}`),
			},
			call: s.getDeviation,
		},
		{
			Tool: Tool{
				Name:        "brainstorm",
				Description: "Draft root cause, CAPA and effectiveness checks for a new deviation",
				InputSchema: json.RawMessage(`{
					"type": "object",
					"properties": {
						"problem_description": {"type": "string", "description": "Problem description and immediate action"}
					},
					"required": ["problem_description"]
				}`),
			},
			call: s.brainstormDeviation,
		},
	}
}

func (s *Server) searchDeviations(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query string `json:"query"`
		TopK  *int   `json:"top_k"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	topK := s.defaultTopK
	if args.TopK != nil {
		topK = *args.TopK
	}

	results, err := s.similarity.FindSimilar(ctx, []string{args.Query}, topK)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, m := range results[0].Matches {
		fmt.Fprintf(&b, "%s (%s, score %.3f): %s\n", m.Metadata[domain.MetaSummaryID], m.RecordID, m.Score, m.Text)
	}
	return map[string]any{
		"content":       textContent(b.String()),
		"deviation_ids": retrieval.UnionRecordIDs(results, domain.MetaSummaryID),
	}, nil
}

func (s *Server) getDeviation(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	record, err := s.ingest.Get(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"content": textContent(fmt.Sprintf("Problem description: %s\nRoot cause: %s", record.ProblemDescription, record.RootCause)),
	}, nil
}

func (s *Server) brainstormDeviation(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		ProblemDescription string `json:"problem_description"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	result, err := s.brainstorm.Brainstorm(ctx, map[string]string{domain.ProblemDescriptionField: args.ProblemDescription})
	if err != nil {
		return nil, err
	}

	// One block per section, in execution order.
	var sections []string
	for _, wave := range result.Waves {
		for _, key := range wave {
			sections = append(sections, fmt.Sprintf("## %s\n\n%s", key, result.Sections[key]))
		}
	}
	return map[string]any{
		"content":            textContent(sections...),
		"similar_deviations": result.SimilarDeviations,
	}, nil
}
