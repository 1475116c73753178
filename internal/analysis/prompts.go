package analysis

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/xaenox/wheel-bot/internal/models"
)

//go:embed prompts/*.txt
var embeddedPrompts embed.FS

const (
	wheelPromptFile      = "wheel_analysis.txt"
	comparisonPromptFile = "comparison.txt"
)

// Prompts renders the two prompt templates.
type Prompts struct {
	wheel      *template.Template
	comparison *template.Template
}

// LoadPrompts reads the templates from dir, falling back to the built-in copy
// for every file that dir does not provide. An empty dir means built-ins only.
func LoadPrompts(dir string) (*Prompts, error) {
	wheel, err := loadTemplate(dir, wheelPromptFile)
	if err != nil {
		return nil, err
	}
	comparison, err := loadTemplate(dir, comparisonPromptFile)
	if err != nil {
		return nil, err
	}
	return &Prompts{wheel: wheel, comparison: comparison}, nil
}

func loadTemplate(dir, name string) (*template.Template, error) {
	var raw []byte
	if dir != "" {
		b, err := os.ReadFile(filepath.Join(dir, name))
		switch {
		case err == nil:
			raw = b
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}
	if raw == nil {
		b, err := embeddedPrompts.ReadFile("prompts/" + name)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt %s: %w", name, err)
	}
	return tmpl, nil
}

// FormatScores renders one "Category: value/10" line per score.
func FormatScores(scores []models.Score) string {
	lines := make([]string, 0, len(scores))
	for _, s := range scores {
		lines = append(lines, fmt.Sprintf("%s: %d/%d", s.Category, s.Value, models.MaxScore))
	}
	return strings.Join(lines, "\n")
}

func (p *Prompts) Wheel(scores []models.Score) (string, error) {
	var sb strings.Builder
	err := p.wheel.Execute(&sb, map[string]string{
		"Scores": FormatScores(scores),
	})
	return sb.String(), err
}

// Comparison fills the comparison template; older must precede newer in time.
func (p *Prompts) Comparison(older, newer []models.Score, dateOlder, dateNewer string) (string, error) {
	var sb strings.Builder
	err := p.comparison.Execute(&sb, map[string]string{
		"ScoresOlder": FormatScores(older),
		"ScoresNewer": FormatScores(newer),
		"DateOlder":   dateOlder,
		"DateNewer":   dateNewer,
	})
	return sb.String(), err
}
