package rewrite

import (
	"context"
	"fmt"
	"net/http"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
)

// New selects the generator named by cfg.Mode.
func New(ctx context.Context, cfg config.RewriteConfig, httpClient *http.Client) (Generator, error) {
	// The default endpoint is the local Ollama server; hosted APIs keep
	// their own base URL unless one is configured explicitly.
	hosted := cfg.Endpoint
	if hosted == config.Default().Rewrite.Endpoint {
		hosted = ""
	}
	switch cfg.Mode {
	case "", "mock":
		return NewMockGenerator(), nil
	case "gemini":
		return NewGeminiGenerator(ctx, cfg.APIKey, hosted, cfg.Model)
	case "openai":
		return NewOpenAIGenerator(cfg.APIKey, hosted, cfg.Model), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model, httpClient), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported rewrite mode %q", cfg.Mode)
	}
}
