package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
	"github.com/a0799406417-svg/gemini-tts-app/internal/playback"
)

func configFor(mode, command string) config.SpeechConfig {
	return config.SpeechConfig{Mode: mode, Command: command}
}

func newTestService(t *testing.T, engine Engine) *Service {
	t.Helper()
	svc := NewService(context.Background(), engine, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestSpeakLifecycle(t *testing.T) {
	engine := NewMockEngine()
	svc := newTestService(t, engine)

	if err := svc.Speak(context.Background(), "שלום", "he"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if got := svc.State(); !got.Speaking || got.Paused {
		t.Fatalf("expected speaking, got %+v", got)
	}

	u := engine.Utterances()[0]
	if u.Text != "שלום" || u.Voice != "he" {
		t.Fatalf("unexpected utterance %+v", u)
	}

	if err := svc.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if got := svc.State(); !got.Speaking || !got.Paused || !u.Paused() {
		t.Fatalf("expected paused, got %+v", got)
	}
	if err := svc.Pause(); err != nil {
		t.Fatalf("second pause should be a no-op: %v", err)
	}
	if err := svc.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if svc.Status() != playback.StatusPlaying || u.Paused() {
		t.Fatalf("expected playing after resume")
	}
	if len(engine.Utterances()) != 1 {
		t.Fatal("pause/resume must not recreate the utterance")
	}

	u.Finish(nil)
	if got := svc.State(); got.Speaking || got.Paused {
		t.Fatalf("expected idle after end, got %+v", got)
	}
}

func TestSpeakBlankIsNoop(t *testing.T) {
	engine := NewMockEngine()
	svc := newTestService(t, engine)
	if err := svc.Speak(context.Background(), "  \n", ""); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if len(engine.Utterances()) != 0 || svc.State().Speaking {
		t.Fatal("blank text should not start an utterance")
	}
}

func TestSpeakCancelsPrevious(t *testing.T) {
	engine := NewMockEngine()
	svc := newTestService(t, engine)

	_ = svc.Speak(context.Background(), "one", "")
	_ = svc.Speak(context.Background(), "two", "")
	utterances := engine.Utterances()
	if len(utterances) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utterances))
	}
	if !utterances[0].Cancelled() || utterances[1].Cancelled() {
		t.Fatal("only the first utterance should be cancelled")
	}

	// A late end from the cancelled utterance is ignored.
	utterances[0].Finish(nil)
	if !svc.State().Speaking {
		t.Fatal("stale completion must not stop the live utterance")
	}
}

func TestCancelAndError(t *testing.T) {
	engine := NewMockEngine()
	svc := newTestService(t, engine)

	_ = svc.Speak(context.Background(), "one", "")
	if err := svc.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if svc.State().Speaking {
		t.Fatal("expected idle after cancel")
	}

	_ = svc.Speak(context.Background(), "two", "")
	engine.Utterances()[1].Finish(errors.New("audio device busy"))
	if svc.State().Speaking {
		t.Fatal("expected idle after error")
	}

	engine.FailSpeak(errors.New("no engine"))
	if err := svc.Speak(context.Background(), "three", ""); err == nil {
		t.Fatal("expected speak error")
	}
	if svc.State().Speaking {
		t.Fatal("failed speak must leave the service idle")
	}
}

func TestWatchRefreshesVoices(t *testing.T) {
	engine := NewMockEngine(Voice{Name: "Hebrew", Language: "he"})
	svc := newTestService(t, engine)

	notify := make(chan struct{})
	svc.Watch(notify)
	notify <- struct{}{}
	waitVoices(t, svc, 1)

	engine.SetVoices(Voice{Name: "Hebrew", Language: "he"}, Voice{Name: "English", Language: "en"})
	notify <- struct{}{}
	waitVoices(t, svc, 2)
	close(notify)
}

func waitVoices(t *testing.T, svc *Service, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(svc.Voices()) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d voices, got %d", n, len(svc.Voices()))
}

func TestPollChanges(t *testing.T) {
	engine := NewMockEngine(Voice{Name: "Hebrew", Language: "he"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := PollChanges(ctx, engine, 10*time.Millisecond)
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected initial notification")
	}

	engine.SetVoices(Voice{Name: "English", Language: "en"})
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}

	cancel()
	for range changes {
	}
}

func TestParseVoices(t *testing.T) {
	table := `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 5  he              --/M      Hebrew             sem/he
 5  en-us           --/M      English_(America)  gmw/en-US            (en 3)
`
	voices, err := parseVoices(strings.NewReader(table))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(voices) != 3 {
		t.Fatalf("expected 3 voices, got %d", len(voices))
	}
	want := Voice{Name: "English (America)", Language: "en-us", Gender: "M", ID: "gmw/en-US"}
	if voices[2] != want {
		t.Fatalf("unexpected voice %+v", voices[2])
	}
}

func TestFactory(t *testing.T) {
	if _, err := New(configFor("mock", "")); err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, err := New(configFor("exec", "")); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := New(configFor("sapi", "x")); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
