package analysis

import "context"

type fallbackAnalyzer struct {
	primary   Analyzer
	secondary Analyzer
}

// WithFallback routes fallback calls to secondary. Primary calls go to
// primary unchanged.
func WithFallback(primary, secondary Analyzer) Analyzer {
	if secondary == nil {
		return primary
	}
	return &fallbackAnalyzer{primary: primary, secondary: secondary}
}

func (f *fallbackAnalyzer) Analyze(ctx context.Context, image []byte, mimeType string, useFallback bool) (*Result, error) {
	if useFallback {
		return f.secondary.Analyze(ctx, image, mimeType, false)
	}
	return f.primary.Analyze(ctx, image, mimeType, false)
}
