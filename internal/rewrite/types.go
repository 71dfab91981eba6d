package rewrite

import (
	"context"
	"strings"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
)

// Request describes a rewrite prompt.
type Request struct {
	RequestID   string
	Prompt      string
	System      string
	Source      string
	Tone        string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Chunk represents generated output. Streaming backends emit several
// partial chunks followed by a final one.
type Chunk struct {
	RequestID        string
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable text generation backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// OptionsFromConfig builds request defaults from config.
func OptionsFromConfig(cfg config.RewriteConfig) Request {
	return Request{Model: cfg.Model, MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
}

// modelFor picks the first usable model name among candidates. Non-Gemini
// backends skip Gemini model names, which the shared config defaults to.
func modelFor(gemini bool, candidates ...string) string {
	for _, m := range candidates {
		if m == "" {
			continue
		}
		if !gemini && strings.HasPrefix(m, "gemini") {
			continue
		}
		return m
	}
	return ""
}
