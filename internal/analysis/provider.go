// Package analysis asks language models to comment on wheels of life.
package analysis

import (
	"context"
	"strings"
)

// FailurePrefix starts every analysis text that is really an error report.
// Callers never persist such text as an analysis.
const FailurePrefix = "Ошибка анализа"

// IsFailure reports whether text is a failure report rather than an analysis.
func IsFailure(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), FailurePrefix)
}

// Options tune a single generation. Nil fields keep the provider default.
type Options struct {
	Temperature *float32
	TopP        *float32
}

// Provider is one language model backend.
type Provider interface {
	Name() string
	// Probe checks that the backend is reachable before a long generation.
	Probe(ctx context.Context) error
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

func float32Ptr(v float32) *float32 { return &v }

// comparisonOptions mirror the sampling used for comparisons on the local model.
var comparisonOptions = Options{
	Temperature: float32Ptr(0.7),
	TopP:        float32Ptr(0.9),
}
