package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/metrics"
	"github.com/xaenox/wheel-bot/internal/models"
	"github.com/xaenox/wheel-bot/pkg/config"
)

const (
	kindWheel      = "wheel"
	kindComparison = "comparison"
)

var errNoProviders = errors.New("нет настроенных LLM-провайдеров")

// Chain tries providers in order and returns the first non-empty answer.
// A provider whose probe fails is skipped without a generation attempt.
type Chain struct {
	providers    []Provider
	prompts      *Prompts
	probeTimeout time.Duration
	callTimeout  time.Duration
	logger       *zap.Logger
}

func NewChain(providers []Provider, prompts *Prompts, probeTimeout, callTimeout time.Duration, logger *zap.Logger) *Chain {
	return &Chain{
		providers:    providers,
		prompts:      prompts,
		probeTimeout: probeTimeout,
		callTimeout:  callTimeout,
		logger:       logger,
	}
}

// FromConfig enables every configured provider, default provider first and
// then openai, openrouter and ollama.
func FromConfig(cfg config.LLMConfig, logger *zap.Logger) (*Chain, error) {
	prompts, err := LoadPrompts(cfg.PromptsDir)
	if err != nil {
		return nil, err
	}

	available := map[string]Provider{}
	if cfg.OpenAI.APIKey != "" {
		available["openai"] = NewOpenAIProvider("openai", cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL,
			cfg.OpenAI.Model, cfg.OpenAI.MaxTokens, cfg.OpenAI.Temperature, logger)
	}
	if cfg.OpenRouter.APIKey != "" {
		available["openrouter"] = NewOpenAIProvider("openrouter", cfg.OpenRouter.APIKey, cfg.OpenRouter.BaseURL,
			cfg.OpenRouter.Model, cfg.OpenRouter.MaxTokens, cfg.OpenRouter.Temperature, logger)
	}
	if cfg.Ollama.URL != "" {
		available["ollama"] = NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model, logger)
	}

	order := []string{cfg.DefaultProvider, "openai", "openrouter", "ollama"}
	var providers []Provider
	seen := map[string]bool{}
	for _, name := range order {
		p, ok := available[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		providers = append(providers, p)
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	logger.Info("LLM providers configured", zap.Strings("order", names))

	return NewChain(providers, prompts, cfg.ProbeTimeout, cfg.CallTimeout, logger), nil
}

func (c *Chain) Providers() []Provider { return c.providers }

// Analyze returns the analysis of one wheel, or a text starting with
// FailurePrefix when no provider could answer.
func (c *Chain) Analyze(ctx context.Context, scores []models.Score) string {
	prompt, err := c.prompts.Wheel(scores)
	if err != nil {
		return failure(err)
	}
	return c.generate(ctx, kindWheel, prompt, Options{})
}

// Compare comments on the change from older to newer.
func (c *Chain) Compare(ctx context.Context, older, newer []models.Score, dateOlder, dateNewer string) string {
	prompt, err := c.prompts.Comparison(older, newer, dateOlder, dateNewer)
	if err != nil {
		return failure(err)
	}
	return c.generate(ctx, kindComparison, prompt, comparisonOptions)
}

func (c *Chain) generate(ctx context.Context, kind, prompt string, opts Options) string {
	lastErr := errNoProviders
	for _, p := range c.providers {
		if err := c.probe(ctx, p); err != nil {
			c.logger.Warn("LLM provider unavailable, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err))
			lastErr = err
			continue
		}

		start := time.Now()
		text, err := c.call(ctx, p, prompt, opts)
		if err == nil && strings.TrimSpace(text) == "" {
			err = fmt.Errorf("%s returned an empty answer", p.Name())
		}
		metrics.RecordAnalysis(p.Name(), kind, time.Since(start).Seconds(), err == nil)
		if err != nil {
			c.logger.Warn("LLM generation failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("kind", kind),
				zap.Error(err))
			lastErr = err
			continue
		}
		return text
	}
	return failure(lastErr)
}

func (c *Chain) probe(ctx context.Context, p Provider) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	return p.Probe(ctx)
}

func (c *Chain) call(ctx context.Context, p Provider, prompt string, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return p.Generate(ctx, prompt, opts)
}

func failure(err error) string {
	return fmt.Sprintf("%s: %v", FailurePrefix, err)
}
