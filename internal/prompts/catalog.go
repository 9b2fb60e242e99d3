// Package prompts loads the prompt catalog that drives summaries, brainstorming,
// document generation and ingestion answers.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrInvalidCatalog is returned when a catalog fails validation.
var ErrInvalidCatalog = errors.New("invalid prompt catalog")

// Template names.
const (
	TemplateSummary    = "summary"
	TemplateNormalize  = "normalize"
	TemplateBrainstorm = "brainstorm"
	TemplateGeneration = "generation"
	TemplateAnswer     = "answer"
)

// Templates holds the frame text for each kind of prompt.
type Templates struct {
	Summary    string `yaml:"summary"`
	Normalize  string `yaml:"normalize"`
	Brainstorm string `yaml:"brainstorm"`
	Generation string `yaml:"generation"`
	Answer     string `yaml:"answer"`
}

// BrainstormPrompt is one brainstorming section.
type BrainstormPrompt struct {
	Key              string   `yaml:"key"`
	Question         string   `yaml:"question"`
	DependsOn        []string `yaml:"depends_on"`
	DependencyFormat string   `yaml:"dependency_format"`
	// UseHistory includes the previous similar root causes in the prompt.
	UseHistory bool   `yaml:"use_history"`
	Prompt     string `yaml:"prompt"`
	Active     *bool  `yaml:"active"`
}

// IsActive reports whether the prompt is enabled. Prompts are active unless disabled.
func (p BrainstormPrompt) IsActive() bool { return p.Active == nil || *p.Active }

// GenerationPrompt is one subsection of a generated GMP document.
type GenerationPrompt struct {
	Section    string `yaml:"section"`
	Subsection string `yaml:"subsection"`
	Prompt     string `yaml:"prompt"`
	Active     *bool  `yaml:"active"`
}

// IsActive reports whether the prompt is enabled.
func (p GenerationPrompt) IsActive() bool { return p.Active == nil || *p.Active }

// Question is answered once per ingested deviation; each answer is indexed.
type Question struct {
	Question string `yaml:"question"`
	Prompt   string `yaml:"prompt"`
}

// Catalog is a parsed, validated prompt catalog.
type Catalog struct {
	Templates  Templates          `yaml:"templates"`
	Brainstorm []BrainstormPrompt `yaml:"brainstorm"`
	Generation []GenerationPrompt `yaml:"generation"`
	Questions  []Question         `yaml:"questions"`

	tmpl *template.Template
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) compile() error {
	root := template.New("catalog").Option("missingkey=error")
	for name, text := range map[string]string{
		TemplateSummary:    c.Templates.Summary,
		TemplateNormalize:  c.Templates.Normalize,
		TemplateBrainstorm: c.Templates.Brainstorm,
		TemplateGeneration: c.Templates.Generation,
		TemplateAnswer:     c.Templates.Answer,
	} {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: template %q is empty", ErrInvalidCatalog, name)
		}
		if _, err := root.New(name).Parse(text); err != nil {
			return fmt.Errorf("%w: template %q: %v", ErrInvalidCatalog, name, err)
		}
	}
	c.tmpl = root
	return nil
}

func (c *Catalog) validate() error {
	keys := make(map[string]bool, len(c.Brainstorm))
	for i, p := range c.Brainstorm {
		if p.Key == "" {
			return fmt.Errorf("%w: brainstorm prompt %d has no key", ErrInvalidCatalog, i)
		}
		if keys[p.Key] {
			return fmt.Errorf("%w: duplicate brainstorm key %q", ErrInvalidCatalog, p.Key)
		}
		keys[p.Key] = true
	}
	for _, p := range c.ActiveBrainstorm() {
		for _, dep := range p.DependsOn {
			if !c.activeKey(dep) {
				return fmt.Errorf("%w: %q depends on inactive or unknown %q", ErrInvalidCatalog, p.Key, dep)
			}
		}
	}

	subsections := make(map[string]bool, len(c.Generation))
	for i, p := range c.Generation {
		if p.Section == "" || p.Subsection == "" {
			return fmt.Errorf("%w: generation prompt %d needs section and subsection", ErrInvalidCatalog, i)
		}
		if subsections[p.Subsection] {
			return fmt.Errorf("%w: duplicate subsection %q", ErrInvalidCatalog, p.Subsection)
		}
		subsections[p.Subsection] = true
	}

	for i, q := range c.Questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("%w: question %d has no prompt", ErrInvalidCatalog, i)
		}
	}
	return nil
}

func (c *Catalog) activeKey(key string) bool {
	for _, p := range c.Brainstorm {
		if p.Key == key {
			return p.IsActive()
		}
	}
	return false
}

// ActiveBrainstorm returns enabled brainstorming prompts in catalog order.
func (c *Catalog) ActiveBrainstorm() []BrainstormPrompt {
	var out []BrainstormPrompt
	for _, p := range c.Brainstorm {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

// ActiveGeneration returns enabled generation prompts in catalog order.
func (c *Catalog) ActiveGeneration() []GenerationPrompt {
	var out []GenerationPrompt
	for _, p := range c.Generation {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

// Summary renders the summarization prompt for raw section input.
func (c *Catalog) Summary(input string) (string, error) {
	return c.render(TemplateSummary, map[string]any{"Input": input})
}

// Normalize renders the prompt that rewrites a summary into similarity-friendly text.
func (c *Catalog) Normalize(summary string) (string, error) {
	return c.render(TemplateNormalize, map[string]any{"Summary": summary})
}

// BrainstormInstructions renders the fixed part of a brainstorming task.
// history is only included when the prompt asks for it.
func (c *Catalog) BrainstormInstructions(p BrainstormPrompt, summary, history string) (string, error) {
	if !p.UseHistory {
		history = ""
	}
	return c.render(TemplateBrainstorm, map[string]any{
		"Question": p.Question,
		"Summary":  summary,
		"Prompt":   strings.TrimSpace(p.Prompt),
		"History":  history,
	})
}

// GenerationInstructions renders the fixed part of a document subsection task.
func (c *Catalog) GenerationInstructions(p GenerationPrompt) (string, error) {
	return c.render(TemplateGeneration, map[string]any{
		"Subsection": p.Subsection,
		"Prompt":     strings.TrimSpace(p.Prompt),
	})
}

// Answer renders the prompt answering one ingestion question.
func (c *Catalog) Answer(q Question, summary string) (string, error) {
	return c.render(TemplateAnswer, map[string]any{
		"Summary": summary,
		"Prompt":  strings.TrimSpace(q.Prompt),
	})
}

func (c *Catalog) render(name string, data map[string]any) (string, error) {
	var b strings.Builder
	if err := c.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return b.String(), nil
}
