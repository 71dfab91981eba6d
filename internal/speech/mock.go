package speech

import (
	"context"
	"sync"
)

// MockEngine records utterances and lets callers finish them by hand.
type MockEngine struct {
	mu         sync.Mutex
	voices     []Voice
	utterances []*MockUtterance
	speakErr   error
}

func NewMockEngine(voices ...Voice) *MockEngine {
	return &MockEngine{voices: voices}
}

// SetVoices replaces the reported voice list.
func (m *MockEngine) SetVoices(voices ...Voice) {
	m.mu.Lock()
	m.voices = voices
	m.mu.Unlock()
}

// FailSpeak makes subsequent Speak calls return err.
func (m *MockEngine) FailSpeak(err error) {
	m.mu.Lock()
	m.speakErr = err
	m.mu.Unlock()
}

func (m *MockEngine) Voices(context.Context) ([]Voice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Voice(nil), m.voices...), nil
}

func (m *MockEngine) Speak(_ context.Context, text, voice string, notify func(error)) (Utterance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.speakErr != nil {
		return nil, m.speakErr
	}
	u := &MockUtterance{Text: text, Voice: voice, notify: notify}
	m.utterances = append(m.utterances, u)
	return u, nil
}

// Utterances returns every utterance started so far.
func (m *MockEngine) Utterances() []*MockUtterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockUtterance(nil), m.utterances...)
}

type MockUtterance struct {
	Text  string
	Voice string

	mu        sync.Mutex
	paused    bool
	cancelled bool
	notify    func(error)
}

func (u *MockUtterance) Pause() error {
	u.mu.Lock()
	u.paused = true
	u.mu.Unlock()
	return nil
}

func (u *MockUtterance) Resume() error {
	u.mu.Lock()
	u.paused = false
	u.mu.Unlock()
	return nil
}

func (u *MockUtterance) Cancel() error {
	u.mu.Lock()
	u.cancelled = true
	u.mu.Unlock()
	return nil
}

// Finish reports completion with err (nil for a natural end).
func (u *MockUtterance) Finish(err error) {
	u.notify(err)
}

func (u *MockUtterance) Paused() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.paused
}

func (u *MockUtterance) Cancelled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cancelled
}
