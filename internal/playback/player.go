package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Player owns at most one live device. Loading a new artifact releases the
// previous device first.
type Player struct {
	mu      sync.Mutex
	open    DeviceFactory
	dev     Device
	gen     uint64
	machine *Machine
	logger  *slog.Logger
}

// NewPlayer builds a player. onChange, when set, observes every applied
// state transition; it runs with the player locked and must not call back
// into it.
func NewPlayer(open DeviceFactory, logger *slog.Logger, onChange func(Transition)) *Player {
	return &Player{
		open:    open,
		machine: NewMachine(onChange),
		logger:  logger.With(slog.String("component", "player")),
	}
}

// Load releases the current device and opens a new one for art.
func (p *Player) Load(ctx context.Context, art Artifact) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseLocked()
	gen := p.gen
	dev, err := p.open(ctx, art, func(err error) { p.finished(gen, err) })
	if err != nil {
		return fmt.Errorf("%w: open device: %v", ErrPlayback, err)
	}
	p.dev = dev
	return nil
}

// Play starts or resumes playback. It is a no-op while playing.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playLocked()
}

// Pause suspends playback. It is a no-op unless playing.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauseLocked()
}

// Toggle pauses when playing and plays otherwise.
func (p *Player) Toggle() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.machine.Status() == StatusPlaying {
		return p.pauseLocked()
	}
	return p.playLocked()
}

// Stop pauses, rewinds to zero and goes idle. The device is kept.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return nil
	}
	if err := p.dev.Rewind(); err != nil {
		return p.failLocked(err)
	}
	p.machine.Fire(EventStop)
	return nil
}

// Release closes the device. Later transport calls report ErrNoResource.
func (p *Player) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

// Live reports whether a device is loaded.
func (p *Player) Live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev != nil
}

func (p *Player) Status() Status {
	return p.machine.Status()
}

func (p *Player) playLocked() error {
	if p.dev == nil {
		return ErrNoResource
	}
	switch p.machine.Status() {
	case StatusPlaying:
		return nil
	case StatusPaused:
		if err := p.dev.Start(); err != nil {
			return p.failLocked(err)
		}
		p.machine.Fire(EventResume)
	default:
		if err := p.dev.Start(); err != nil {
			return p.failLocked(err)
		}
		p.machine.Fire(EventStart)
	}
	return nil
}

func (p *Player) pauseLocked() error {
	if p.dev == nil {
		return ErrNoResource
	}
	if p.machine.Status() != StatusPlaying {
		return nil
	}
	if err := p.dev.Pause(); err != nil {
		return p.failLocked(err)
	}
	p.machine.Fire(EventPause)
	return nil
}

func (p *Player) failLocked(err error) error {
	wrapped := fmt.Errorf("%w: %v", ErrPlayback, err)
	p.logger.Error("playback device error", slog.String("error", err.Error()))
	if _, ok := p.machine.Fire(EventError); !ok {
		p.machine.Reset()
	}
	return wrapped
}

func (p *Player) releaseLocked() {
	p.gen++
	if p.dev != nil {
		if err := p.dev.Close(); err != nil {
			p.logger.Warn("failed to release playback device", slog.String("error", err.Error()))
		}
		p.dev = nil
	}
	p.machine.Reset()
}

func (p *Player) finished(gen uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || p.dev == nil {
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("playback ended with error", slog.String("error", err.Error()))
		p.machine.Fire(EventError)
		return
	}
	p.machine.Fire(EventEnd)
}
