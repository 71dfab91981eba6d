package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/a0799406417-svg/gemini-tts-app/internal/proc"
	"github.com/mattn/go-shellwords"
)

// NewExecFactory returns a factory that plays artifacts with an external
// player command. The audio file path is appended to the arguments.
func NewExecFactory(command string) (DeviceFactory, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}
	return func(_ context.Context, art Artifact, notify func(error)) (Device, error) {
		file, err := os.CreateTemp("", "ttsctl-*"+extensionFor(art.ContentType))
		if err != nil {
			return nil, err
		}
		if _, err := file.Write(art.Data); err != nil {
			file.Close()
			os.Remove(file.Name())
			return nil, fmt.Errorf("write audio file: %w", err)
		}
		if err := file.Close(); err != nil {
			os.Remove(file.Name())
			return nil, err
		}
		return &execDevice{args: args, path: file.Name(), notify: notify}, nil
	}, nil
}

type execDevice struct {
	mu        sync.Mutex
	args      []string
	path      string
	cmd       *exec.Cmd
	suspended bool
	notify    func(error)
}

func (d *execDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd != nil {
		if !d.suspended {
			return nil
		}
		if err := proc.Resume(d.cmd.Process); err != nil {
			return err
		}
		d.suspended = false
		return nil
	}

	args := append(append([]string{}, d.args[1:]...), d.path)
	cmd := exec.Command(d.args[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}
	d.cmd = cmd
	d.suspended = false
	go d.wait(cmd)
	return nil
}

func (d *execDevice) wait(cmd *exec.Cmd) {
	err := cmd.Wait()
	d.mu.Lock()
	if d.cmd != cmd {
		// Stopped on purpose by Rewind or Close.
		d.mu.Unlock()
		return
	}
	d.cmd = nil
	d.suspended = false
	d.mu.Unlock()
	if err != nil {
		d.notify(fmt.Errorf("player exited: %w", err))
		return
	}
	d.notify(nil)
}

func (d *execDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil || d.suspended {
		return nil
	}
	if err := proc.Suspend(d.cmd.Process); err != nil {
		return err
	}
	d.suspended = true
	return nil
}

// Rewind kills the running player; the next Start replays from zero.
func (d *execDevice) Rewind() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.killLocked()
}

func (d *execDevice) Close() error {
	d.mu.Lock()
	err := d.killLocked()
	d.mu.Unlock()
	if rmErr := os.Remove(d.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

func (d *execDevice) killLocked() error {
	if d.cmd == nil {
		return nil
	}
	process := d.cmd.Process
	d.cmd = nil
	d.suspended = false
	if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stop player: %w", err)
	}
	return nil
}
