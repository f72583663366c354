package analysis

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"photoingest/internal/models"
)

// New builds the configured analyzer. When a fallback provider is set,
// fallback calls go to it; otherwise the primary provider degrades to its
// fallback model. The returned func releases provider clients.
func New(ctx context.Context, cfg models.AnalysisConfig) (Analyzer, func() error, error) {
	const op = "analysis.New"

	var closers []func() error
	closeAll := func() error {
		var err error
		for _, c := range closers {
			err = multierr.Append(err, c())
		}
		return err
	}

	primary, closer, err := newProvider(ctx, cfg.Provider, cfg.Model, cfg.FallbackModel, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	if cfg.FallbackProvider == "" || cfg.FallbackProvider == cfg.Provider {
		return primary, closeAll, nil
	}

	secondary, closer, err := newProvider(ctx, cfg.FallbackProvider, cfg.FallbackModel, cfg.FallbackModel, cfg)
	if err != nil {
		_ = closeAll()
		return nil, nil, fmt.Errorf("%s: fallback: %w", op, err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	return WithFallback(primary, secondary), closeAll, nil
}

func newProvider(ctx context.Context, provider, model, fallbackModel string, cfg models.AnalysisConfig) (Analyzer, func() error, error) {
	switch provider {
	case ProviderGemini:
		if model == "" {
			model = "gemini-1.5-flash"
		}
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, model, fallbackModel, cfg.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case ProviderOllama:
		return NewOllama(cfg.OllamaURL, model, fallbackModel, cfg.Timeout), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
