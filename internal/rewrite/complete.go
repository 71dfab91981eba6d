package rewrite

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEmptyCompletion is returned when the backend produced no usable text.
var ErrEmptyCompletion = errors.New("rewrite service returned empty text")

// Result is the accumulated output of one generation.
type Result struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Complete runs gen to completion and joins the streamed chunks.
func Complete(ctx context.Context, gen Generator, req Request) (Result, error) {
	var (
		sb  strings.Builder
		res Result
	)
	start := time.Now()
	err := gen.Generate(ctx, req, func(chunk Chunk) error {
		sb.WriteString(chunk.Content)
		if chunk.PromptTokens > 0 {
			res.PromptTokens = chunk.PromptTokens
		}
		if chunk.CompletionTokens > 0 {
			res.CompletionTokens = chunk.CompletionTokens
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	res.Latency = time.Since(start)
	res.Text = strings.TrimSpace(sb.String())
	if res.Text == "" {
		return res, ErrEmptyCompletion
	}
	return res, nil
}
