package rewrite

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = strings.TrimSpace(req.Prompt)
	}
	content := "[" + strings.TrimSpace(req.Tone) + "] " + source
	return consumer(Chunk{
		RequestID: req.RequestID,
		Content:   content,
		Partial:   false,
		Latency:   20 * time.Millisecond,
	})
}
