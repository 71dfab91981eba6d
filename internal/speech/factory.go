package speech

import (
	"fmt"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
)

// New selects the engine named by cfg.Mode.
func New(cfg config.SpeechConfig) (Engine, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockEngine(Voice{Name: "Hebrew", Language: "he", Gender: "M", ID: "sem/he"}), nil
	case "", "exec":
		return NewExecEngine(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported speech mode %q", cfg.Mode)
	}
}
