package speech

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/a0799406417-svg/gemini-tts-app/internal/proc"
	"github.com/mattn/go-shellwords"
)

type execEngine struct {
	cmd []string
}

// NewExecEngine drives an espeak-ng compatible command. Text is passed on
// stdin with --stdin and the voice with -v.
func NewExecEngine(command string) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command empty")
	}
	return &execEngine{cmd: args}, nil
}

func (e *execEngine) Voices(ctx context.Context) ([]Voice, error) {
	args := append(append([]string{}, e.cmd[1:]...), "--voices")
	out, err := exec.CommandContext(ctx, e.cmd[0], args...).Output()
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	return parseVoices(bytes.NewReader(out))
}

// parseVoices reads the table printed by espeak-ng --voices:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  he              --/M      Hebrew             sem/he
func parseVoices(r io.Reader) ([]Voice, error) {
	var voices []Voice
	scanner := bufio.NewScanner(r)
	header := true
	for scanner.Scan() {
		line := scanner.Text()
		if header {
			header = false
			if strings.HasPrefix(strings.TrimSpace(line), "Pty") {
				continue
			}
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		gender := fields[2]
		if i := strings.Index(gender, "/"); i >= 0 {
			gender = gender[i+1:]
		}
		voices = append(voices, Voice{
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: fields[1],
			Gender:   gender,
			ID:       fields[4],
		})
	}
	return voices, scanner.Err()
}

func (e *execEngine) Speak(_ context.Context, text, voice string, notify func(error)) (Utterance, error) {
	args := append([]string{}, e.cmd[1:]...)
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, "--stdin")
	cmd := exec.Command(e.cmd[0], args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start speech: %w", err)
	}
	u := &execUtterance{cmd: cmd}
	go func() {
		err := cmd.Wait()
		u.mu.Lock()
		cancelled := u.cancelled
		u.mu.Unlock()
		if cancelled {
			return
		}
		if err != nil {
			notify(fmt.Errorf("speech command failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes())))
			return
		}
		notify(nil)
	}()
	return u, nil
}

type execUtterance struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	cancelled bool
}

func (u *execUtterance) Pause() error { return proc.Suspend(u.cmd.Process) }

func (u *execUtterance) Resume() error { return proc.Resume(u.cmd.Process) }

func (u *execUtterance) Cancel() error {
	u.mu.Lock()
	u.cancelled = true
	u.mu.Unlock()
	if err := u.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
