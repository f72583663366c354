package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const ProviderGemini = "gemini"

// Gemini is a provider for Google Gemini.
type Gemini struct {
	client        *genai.Client
	model         string
	fallbackModel string
	timeout       time.Duration
}

func NewGemini(ctx context.Context, apiKey, model, fallbackModel string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	if fallbackModel == "" {
		fallbackModel = model
	}
	return &Gemini{client: client, model: model, fallbackModel: fallbackModel, timeout: timeout}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Analyze(ctx context.Context, image []byte, mimeType string, useFallback bool) (*Result, error) {
	res, err := g.analyze(ctx, image, mimeType, useFallback)
	if err != nil {
		return nil, &Error{Provider: ProviderGemini, Fallback: useFallback, Err: err}
	}
	return res, nil
}

func (g *Gemini) analyze(ctx context.Context, image []byte, mimeType string, useFallback bool) (*Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	name := g.model
	if useFallback {
		name = g.fallbackModel
	}
	model := g.client.GenerativeModel(name)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx,
		genai.ImageData(imageFormat(mimeType), image),
		genai.Text(Prompt(useFallback)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, errors.New("no candidates returned from Gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return ParseResponse(sb.String())
}

// imageFormat maps "image/jpeg" to the "jpeg" form genai.ImageData expects.
func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(mimeType, "image/")
	if format == "" || format == mimeType {
		return "jpeg"
	}
	return format
}
