package client

import (
	"context"
	"sync"

	"github.com/a0799406417-svg/gemini-tts-app/internal/playback"
	"github.com/a0799406417-svg/gemini-tts-app/internal/speech"
)

// Presentation is what a successful submission hands to the strategy.
type Presentation struct {
	Text  string
	Audio playback.Artifact
}

// Strategy turns a presentation into something the user can hear and
// exposes the shared transport controls for it.
type Strategy interface {
	playback.Transport
	// Present loads p and starts playback.
	Present(ctx context.Context, p Presentation) error
	// Release drops the live resource. Transport calls afterwards report
	// playback.ErrNoResource.
	Release()
	Live() bool
}

// CloudStrategy plays the synthesized audio returned by the server.
type CloudStrategy struct {
	player *playback.Player
}

func NewCloudStrategy(player *playback.Player) *CloudStrategy {
	return &CloudStrategy{player: player}
}

func (s *CloudStrategy) Present(ctx context.Context, p Presentation) error {
	if err := s.player.Load(ctx, p.Audio); err != nil {
		return err
	}
	return s.player.Play()
}

func (s *CloudStrategy) Toggle() error           { return s.player.Toggle() }
func (s *CloudStrategy) Stop() error             { return s.player.Stop() }
func (s *CloudStrategy) Status() playback.Status { return s.player.Status() }
func (s *CloudStrategy) Release()                { s.player.Release() }
func (s *CloudStrategy) Live() bool              { return s.player.Live() }

// LocalStrategy ignores the server audio and reads the rewritten text with
// the local speech engine.
type LocalStrategy struct {
	speech *speech.Service
	voice  string

	mu   sync.Mutex
	text string
}

func NewLocalStrategy(svc *speech.Service, voice string) *LocalStrategy {
	return &LocalStrategy{speech: svc, voice: voice}
}

func (s *LocalStrategy) Present(ctx context.Context, p Presentation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = p.Text
	return s.speech.Speak(ctx, p.Text, s.voice)
}

// Toggle pauses or resumes the utterance. When idle it reads the text again
// from the start.
func (s *LocalStrategy) Toggle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.text == "" {
		return playback.ErrNoResource
	}
	switch s.speech.Status() {
	case playback.StatusPlaying:
		return s.speech.Pause()
	case playback.StatusPaused:
		return s.speech.Resume()
	default:
		return s.speech.Speak(context.Background(), s.text, s.voice)
	}
}

// Stop cancels the utterance but keeps the text for the next Toggle.
func (s *LocalStrategy) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.text == "" {
		return nil
	}
	return s.speech.Cancel()
}

func (s *LocalStrategy) Status() playback.Status { return s.speech.Status() }

func (s *LocalStrategy) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = ""
	_ = s.speech.Cancel()
}

func (s *LocalStrategy) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text != ""
}
