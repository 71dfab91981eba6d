package speech

import "context"

// Voice is one locally installed voice.
type Voice struct {
	Name     string
	Language string
	Gender   string
	ID       string
}

// Utterance controls one spoken text.
type Utterance interface {
	Pause() error
	Resume() error
	Cancel() error
}

// Engine is a local speech synthesizer.
//
// Speak starts speaking text and returns immediately. notify runs once,
// from another goroutine, with nil on natural completion or the failure
// cause. Cancelled utterances are not reported.
type Engine interface {
	Voices(ctx context.Context) ([]Voice, error)
	Speak(ctx context.Context, text, voice string, notify func(error)) (Utterance, error)
}
