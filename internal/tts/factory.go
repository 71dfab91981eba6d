package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
)

// New selects the synthesizer named by cfg.Mode.
func New(ctx context.Context, cfg config.TTSConfig, httpClient *http.Client) (Synthesizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockSynth(cfg.SampleRate), nil
	case "google":
		return NewGoogleSynth(ctx, cfg.CredentialsFile, cfg.Endpoint, cfg.SampleRate)
	case "openai":
		return NewOpenAISynth(cfg.APIKey, cfg.Endpoint, cfg.Model), nil
	case "elevenlabs":
		return NewElevenLabsSynth(cfg.APIKey, cfg.Endpoint, cfg.Model, httpClient), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate)
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}

// Close releases the backend when it holds a connection.
func Close(s Synthesizer) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
