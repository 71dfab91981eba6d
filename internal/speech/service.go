package speech

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/playback"
)

// State mirrors what a UI needs to render transport controls.
type State struct {
	Speaking bool
	Paused   bool
}

// Service wraps an Engine with a voice list and a single-utterance state
// machine.
type Service struct {
	engine  Engine
	logger  *slog.Logger
	machine *playback.Machine

	mu     sync.Mutex
	voices []Voice
	utter  Utterance
	gen    uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(parent context.Context, engine Engine, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		engine:  engine,
		logger:  logger.With(slog.String("component", "speech")),
		machine: playback.NewMachine(nil),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Refresh re-reads the voice list from the engine.
func (s *Service) Refresh(ctx context.Context) error {
	voices, err := s.engine.Voices(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()
	return nil
}

func (s *Service) Voices() []Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.voices)
}

// Watch refreshes the voice list on every value received from notify until
// the channel closes or the service is closed.
func (s *Service) Watch(notify <-chan struct{}) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ctx.Done():
				return
			case _, ok := <-notify:
				if !ok {
					return
				}
				if err := s.Refresh(s.ctx); err != nil && s.ctx.Err() == nil {
					s.logger.Warn("voice refresh failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Speak cancels the current utterance and starts speaking text. Blank text
// is ignored.
func (s *Service) Speak(ctx context.Context, text, voice string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	gen := s.gen
	utter, err := s.engine.Speak(ctx, text, voice, func(err error) { s.finished(gen, err) })
	if err != nil {
		s.logger.Error("speech failed to start", slog.String("error", err.Error()))
		return err
	}
	s.utter = utter
	s.machine.Fire(playback.EventStart)
	return nil
}

// Cancel stops speaking immediately and resets the state.
func (s *Service) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked()
}

// Pause suspends the live utterance. No-op unless speaking.
func (s *Service) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.utter == nil || s.machine.Status() != playback.StatusPlaying {
		return nil
	}
	if err := s.utter.Pause(); err != nil {
		return err
	}
	s.machine.Fire(playback.EventPause)
	return nil
}

// Resume continues a paused utterance. No-op unless paused.
func (s *Service) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.utter == nil || s.machine.Status() != playback.StatusPaused {
		return nil
	}
	if err := s.utter.Resume(); err != nil {
		return err
	}
	s.machine.Fire(playback.EventResume)
	return nil
}

func (s *Service) State() State {
	st := s.machine.Status()
	return State{Speaking: st != playback.StatusIdle, Paused: st == playback.StatusPaused}
}

func (s *Service) Status() playback.Status {
	return s.machine.Status()
}

// Close cancels speech and stops all watchers.
func (s *Service) Close() error {
	err := s.Cancel()
	s.cancel()
	s.wg.Wait()
	return err
}

func (s *Service) cancelLocked() error {
	s.gen++
	var err error
	if s.utter != nil {
		err = s.utter.Cancel()
		s.utter = nil
	}
	s.machine.Reset()
	return err
}

func (s *Service) finished(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.utter = nil
	if err != nil {
		s.logger.Error("speech ended with error", slog.String("error", err.Error()))
		s.machine.Fire(playback.EventError)
		return
	}
	s.machine.Fire(playback.EventEnd)
}

// PollChanges emits on the returned channel whenever the engine's voice list
// differs from the previous poll. The channel closes when ctx is done.
func PollChanges(ctx context.Context, engine Engine, interval time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var last []Voice
		first := true
		for {
			voices, err := engine.Voices(ctx)
			if err == nil && (first || !slices.Equal(voices, last)) {
				last = voices
				first = false
				select {
				case out <- struct{}{}:
				default:
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}
