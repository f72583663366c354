// Package analysis talks to vision models that describe images.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Analyzer describes an image. useFallback asks for the degraded strategy
// used after the primary one has failed.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string, useFallback bool) (*Result, error)
}

type Result struct {
	Description string   `json:"description"`
	Caption     string   `json:"caption"`
	Keywords    []string `json:"keywords"`
	Confidence  float64  `json:"confidence"`
}

// Error is returned by every provider when an analysis call fails.
type Error struct {
	Provider string
	Fallback bool
	Err      error
}

func (e *Error) Error() string {
	mode := "primary"
	if e.Fallback {
		mode = "fallback"
	}
	return fmt.Sprintf("analysis %s (%s): %v", e.Provider, mode, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var ErrEmptyResponse = errors.New("empty response from model")

const analysisPrompt = `Analyze this photograph and respond with a single JSON object and nothing else:
{
  "description": "two or three sentences describing the scene, subjects, setting and mood",
  "caption": "a short caption of at most 12 words",
  "keywords": ["5 to 15 lowercase keywords"],
  "confidence": 0.0
}
confidence is your certainty in the description, between 0 and 1.`

const fallbackPrompt = `Describe this image. Reply only with JSON: {"description": "...", "caption": "...", "keywords": ["..."], "confidence": 0.5}`

// Prompt returns the instruction sent alongside the image.
func Prompt(useFallback bool) string {
	if useFallback {
		return fallbackPrompt
	}
	return analysisPrompt
}

const (
	maxCaptionRunes        = 120
	unstructuredConfidence = 0.3
)

// ParseResponse turns model output into a Result. Output that is not JSON is
// kept as a plain description with low confidence.
func ParseResponse(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	if raw := extractJSON(text); raw != "" {
		var r Result
		if err := json.Unmarshal([]byte(raw), &r); err == nil && (r.Description != "" || r.Caption != "") {
			return normalize(&r), nil
		}
	}

	return normalize(&Result{
		Description: text,
		Confidence:  unstructuredConfidence,
	}), nil
}

// extractJSON returns the outermost {...} block, which also strips markdown
// code fences some models add.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func normalize(r *Result) *Result {
	r.Description = strings.TrimSpace(r.Description)
	r.Caption = strings.TrimSpace(r.Caption)
	if r.Caption == "" {
		r.Caption = firstSentence(r.Description)
	}

	seen := make(map[string]struct{}, len(r.Keywords))
	keywords := r.Keywords[:0]
	for _, k := range r.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keywords = append(keywords, k)
	}
	r.Keywords = keywords

	switch {
	case r.Confidence < 0:
		r.Confidence = 0
	case r.Confidence > 1:
		r.Confidence = 1
	}
	return r
}

func firstSentence(s string) string {
	if i := strings.IndexAny(s, ".!?\n"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxCaptionRunes {
		s = string([]rune(s)[:maxCaptionRunes])
	}
	return s
}
