package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
	"github.com/a0799406417-svg/gemini-tts-app/internal/playback"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
	"github.com/a0799406417-svg/gemini-tts-app/internal/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAudio = []byte("RIFF\x24\x00\x00\x00WAVEfmt fake-pcm-payload")

type fakeServer struct {
	*httptest.Server
	calls atomic.Int32
	last  atomic.Value
}

func newFakeServer(t *testing.T, handler func(w http.ResponseWriter, body protocol.SynthesizeRequest)) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.calls.Add(1)
		var body protocol.SynthesizeRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		fs.last.Store(body)
		handler(w, body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func okHandler(w http.ResponseWriter, body protocol.SynthesizeRequest) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(protocol.SynthesizeResponse{
		RewrittenText: "[" + body.Tone + "] " + body.OriginalText,
		AudioContent:  base64.StdEncoding.EncodeToString(testAudio),
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCloudClient(t *testing.T, url, lang string, opts ...Option) (*Client, *playback.MemoryFactory) {
	t.Helper()
	factory := playback.NewMemoryFactory()
	player := playback.NewPlayer(factory.Open, discardLogger(), nil)
	cfg := config.Default().Client
	cfg.ServerURL = url
	cfg.Language = lang
	c := New(cfg, NewCloudStrategy(player), discardLogger(), opts...)
	t.Cleanup(c.Close)
	return c, factory
}

func TestSubmitValidationMakesNoRequest(t *testing.T) {
	srv := newFakeServer(t, okHandler)
	c, factory := newCloudClient(t, srv.URL, "he")

	_, err := c.Submit(context.Background(), "   ", "כלשהו")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "נא למלא את כל השדות: טקסט לדיבור ואווירת הקראה.", verr.Message)
	assert.Equal(t, verr.Message, c.View().Error)
	assert.Zero(t, srv.calls.Load())
	assert.Empty(t, factory.Devices())
}

func TestSubmitPlaysToNaturalEnd(t *testing.T) {
	srv := newFakeServer(t, okHandler)
	c, factory := newCloudClient(t, srv.URL, "he", WithVoice(protocol.VoiceSelection{LanguageCode: "he-IL", Name: "he-IL-Wavenet-B"}))

	res, err := c.Submit(context.Background(), "  שלום עולם ", " רגוע ")
	require.NoError(t, err)
	assert.Equal(t, "[רגוע] שלום עולם", res.RewrittenText)
	assert.Equal(t, testAudio, res.Audio.Data)
	assert.Equal(t, "audio/wav", res.Audio.ContentType)

	sent := srv.last.Load().(protocol.SynthesizeRequest)
	assert.Equal(t, "שלום עולם", sent.OriginalText)
	require.NotNil(t, sent.Voice)
	assert.Equal(t, "he-IL-Wavenet-B", sent.Voice.Name)

	view := c.View()
	assert.Equal(t, res.RewrittenText, view.RewrittenText)
	assert.Empty(t, view.Error)
	assert.False(t, view.Loading)
	assert.Equal(t, playback.StatusPlaying, c.Status())

	dev := factory.Last()
	require.NotNil(t, dev)
	dev.Advance(dev.Size())
	assert.Equal(t, playback.StatusIdle, c.Status())
}

func TestSubmitReleasesPreviousResource(t *testing.T) {
	srv := newFakeServer(t, okHandler)
	c, factory := newCloudClient(t, srv.URL, "he")

	_, err := c.Submit(context.Background(), "ראשון", "טון")
	require.NoError(t, err)
	first := factory.Last()

	_, err = c.Submit(context.Background(), "שני", "טון")
	require.NoError(t, err)

	devices := factory.Devices()
	require.Len(t, devices, 2)
	assert.True(t, first.Closed())
	assert.False(t, devices[1].Closed())
	assert.True(t, devices[1].Playing())
}

func TestSubmitServerErrorSurfacesTranslatedMessage(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, _ protocol.SynthesizeRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: protocol.ErrTextProcessing})
	})
	c, factory := newCloudClient(t, srv.URL, "he")

	_, err := c.Submit(context.Background(), "טקסט", "טון")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusInternalServerError, terr.Status)
	assert.Equal(t, protocol.ErrTextProcessing, terr.Message)

	view := c.View()
	assert.Equal(t, "שגיאה ביצירת הטקסט: "+protocol.ErrTextProcessing, view.Error)
	assert.False(t, view.Loading)
	assert.Empty(t, view.RewrittenText)
	assert.Empty(t, factory.Devices())
	assert.ErrorIs(t, c.Toggle(), playback.ErrNoResource)
}

func TestSubmitServerErrorWithoutBodyUsesDefault(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, _ protocol.SynthesizeRequest) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c, _ := newCloudClient(t, srv.URL, "en")

	_, err := c.Submit(context.Background(), "text", "tone")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, msgServerDefault, terr.Message)
	assert.Equal(t, "Error while generating the text: "+msgServerDefault, c.View().Error)
}

func TestSubmitMalformedAudio(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, _ protocol.SynthesizeRequest) {
		_ = json.NewEncoder(w).Encode(protocol.SynthesizeResponse{RewrittenText: "x", AudioContent: "%%%not-base64"})
	})
	c, factory := newCloudClient(t, srv.URL, "en")

	_, err := c.Submit(context.Background(), "text", "tone")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Empty(t, factory.Devices())
	assert.Contains(t, c.View().Error, "Error while generating the text")
}

func TestSubmitNetworkFailure(t *testing.T) {
	srv := newFakeServer(t, okHandler)
	url := srv.URL
	srv.Close()
	c, factory := newCloudClient(t, url, "en")

	_, err := c.Submit(context.Background(), "text", "tone")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Zero(t, terr.Status)
	assert.Empty(t, factory.Devices())
	assert.False(t, c.View().Loading)
}

func TestSubmitBusyAndSuperseded(t *testing.T) {
	release := make(chan struct{})
	srv := newFakeServer(t, func(w http.ResponseWriter, body protocol.SynthesizeRequest) {
		<-release
		okHandler(w, body)
	})
	c, factory := newCloudClient(t, srv.URL, "en")

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "slow", "tone")
		done <- err
	}()

	require.Eventually(t, func() bool { return c.View().Loading }, time.Second, 5*time.Millisecond)
	_, err := c.Submit(context.Background(), "second", "tone")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, c.View().Error, "a rejected submission leaves the view untouched")
	assert.True(t, c.View().Loading)

	c.Close()
	close(release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not return")
	}
	assert.Empty(t, factory.Devices())
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestTransportControls(t *testing.T) {
	srv := newFakeServer(t, okHandler)
	c, factory := newCloudClient(t, srv.URL, "he")

	_, err := c.Submit(context.Background(), "טקסט", "טון")
	require.NoError(t, err)
	dev := factory.Last()
	dev.Advance(4)

	require.NoError(t, c.Toggle())
	assert.Equal(t, playback.StatusPaused, c.Status())
	assert.Equal(t, 4, dev.Position())

	require.NoError(t, c.Toggle())
	assert.Equal(t, playback.StatusPlaying, c.Status())

	require.NoError(t, c.Stop())
	assert.Equal(t, playback.StatusIdle, c.Status())
	assert.Zero(t, dev.Position())
	assert.False(t, dev.Closed())

	require.NoError(t, c.Toggle())
	assert.Equal(t, playback.StatusPlaying, c.Status())
}

func TestLocalStrategySpeaksRewrittenText(t *testing.T) {
	srv := newFakeServer(t, okHandler)
	engine := speech.NewMockEngine()
	svc := speech.NewService(context.Background(), engine, discardLogger())
	t.Cleanup(func() { _ = svc.Close() })

	cfg := config.Default().Client
	cfg.ServerURL = srv.URL
	c := New(cfg, NewLocalStrategy(svc, "he"), discardLogger())
	t.Cleanup(c.Close)

	_, err := c.Submit(context.Background(), "טקסט", "טון")
	require.NoError(t, err)
	utterances := engine.Utterances()
	require.Len(t, utterances, 1)
	assert.Equal(t, "[טון] טקסט", utterances[0].Text)
	assert.Equal(t, "he", utterances[0].Voice)
	assert.Equal(t, playback.StatusPlaying, c.Status())

	require.NoError(t, c.Toggle())
	assert.True(t, utterances[0].Paused())
	assert.Equal(t, playback.StatusPaused, c.Status())

	require.NoError(t, c.Stop())
	assert.True(t, utterances[0].Cancelled())
	assert.Equal(t, playback.StatusIdle, c.Status())

	require.NoError(t, c.Toggle())
	require.Len(t, engine.Utterances(), 2)

	c.Close()
	assert.ErrorIs(t, c.Toggle(), playback.ErrNoResource)
}

func TestPresentFailureSurfacesUnexpected(t *testing.T) {
	srv := newFakeServer(t, okHandler)
	factory := playback.NewMemoryFactory()
	factory.FailOpen(errors.New("no audio device"))
	player := playback.NewPlayer(factory.Open, discardLogger(), nil)
	cfg := config.Default().Client
	cfg.ServerURL = srv.URL
	c := New(cfg, NewCloudStrategy(player), discardLogger())

	res, err := c.Submit(context.Background(), "טקסט", "טון")
	require.ErrorIs(t, err, playback.ErrPlayback)
	assert.Equal(t, "[טון] טקסט", res.RewrittenText)
	assert.Equal(t, "אירעה שגיאה לא צפויה.", c.View().Error)
}

func TestPrinterFallsBackToHebrew(t *testing.T) {
	for _, lang := range []string{"", "fr", "not a tag"} {
		assert.Equal(t, "אירעה שגיאה לא צפויה.", newPrinter(lang).Sprintf(msgUnexpected), lang)
	}
	assert.Equal(t, msgUnexpected, newPrinter("en-US").Sprintf(msgUnexpected))
}

func TestSniffContentType(t *testing.T) {
	assert.Equal(t, "audio/wav", sniffContentType([]byte("RIFFxxxx")))
	assert.Equal(t, "audio/ogg", sniffContentType([]byte("OggS\x00")))
	assert.Equal(t, "audio/mpeg", sniffContentType([]byte{0xff, 0xfb, 0x90}))
}
