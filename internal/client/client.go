package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
	"github.com/a0799406417-svg/gemini-tts-app/internal/playback"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
	"github.com/a0799406417-svg/gemini-tts-app/internal/tts"
	"golang.org/x/text/message"
)

const maxErrorBody = 64 << 10

// Result is a successful submission.
type Result struct {
	RewrittenText string
	Audio         playback.Artifact
}

// View is the render state of a client session.
type View struct {
	RewrittenText string
	Error         string
	Loading       bool
	Status        playback.Status
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithVoice sends v with every submission instead of the server default.
func WithVoice(v protocol.VoiceSelection) Option {
	return func(c *Client) { c.voice = &v }
}

// Client submits text to the gateway and owns the single playable resource
// of a session.
type Client struct {
	endpoint string
	http     *http.Client
	strategy Strategy
	printer  *message.Printer
	voice    *protocol.VoiceSelection
	logger   *slog.Logger

	loading atomic.Bool
	seq     atomic.Uint64

	mu        sync.Mutex
	rewritten string
	errMsg    string
}

func New(cfg config.ClientConfig, strategy Strategy, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		endpoint: cfg.ServerURL,
		http:     &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		strategy: strategy,
		printer:  newPrinter(cfg.Language),
		logger:   logger.With(slog.String("component", "client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends the text and tone to the server and starts playback of the
// answer. Any previous resource is released before the request goes out.
func (c *Client) Submit(ctx context.Context, originalText, tone string) (Result, error) {
	text := strings.TrimSpace(originalText)
	tone = strings.TrimSpace(tone)
	if text == "" || tone == "" {
		msg := c.printer.Sprintf(msgMissingFields)
		c.mu.Lock()
		c.errMsg = msg
		c.mu.Unlock()
		return Result{}, &ValidationError{Message: msg}
	}

	if !c.loading.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer c.loading.Store(false)

	seq := c.seq.Add(1)
	c.mu.Lock()
	c.strategy.Release()
	c.rewritten = ""
	c.errMsg = ""
	c.mu.Unlock()

	start := time.Now()
	resp, err := c.post(ctx, protocol.SynthesizeRequest{OriginalText: text, Tone: tone, Voice: c.voice})

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq.Load() {
		c.logger.Debug("discarding superseded response", slog.Uint64("seq", seq))
		return Result{}, ErrSuperseded
	}
	if err != nil {
		c.failLocked(err)
		return Result{}, err
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err == nil && len(audio) == 0 {
		err = tts.ErrEmptyAudio
	}
	if err != nil {
		terr := &TransportError{Status: http.StatusOK, Message: "invalid audio content", Err: err}
		c.failLocked(terr)
		return Result{}, terr
	}

	res := Result{
		RewrittenText: resp.RewrittenText,
		Audio:         playback.Artifact{Data: audio, ContentType: sniffContentType(audio)},
	}
	c.rewritten = res.RewrittenText
	c.logger.Info("submission completed",
		slog.Uint64("seq", seq),
		slog.Int("audio_bytes", len(audio)),
		slog.String("content_type", res.Audio.ContentType),
		slog.Duration("elapsed", time.Since(start)))

	if err := c.strategy.Present(ctx, Presentation{Text: res.RewrittenText, Audio: res.Audio}); err != nil {
		c.logger.Error("playback failed to start", slogError(err))
		c.errMsg = c.printer.Sprintf(msgUnexpected)
		return res, err
	}
	return res, nil
}

// Voices asks the server for the synthesis voices of languageCode.
func (c *Client) Voices(ctx context.Context, languageCode string) ([]tts.Voice, error) {
	u, err := url.JoinPath(c.endpoint, "voices")
	if err != nil {
		return nil, fmt.Errorf("voices url: %w", err)
	}
	if languageCode != "" {
		u += "?" + url.Values{"languageCode": {languageCode}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp)
	}
	var body struct {
		Voices []tts.Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &TransportError{Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return body.Voices, nil
}

// Toggle pauses while playing and plays otherwise.
func (c *Client) Toggle() error { return c.strategy.Toggle() }

// Stop pauses and rewinds to the start. The resource stays loaded.
func (c *Client) Stop() error { return c.strategy.Stop() }

func (c *Client) Status() playback.Status { return c.strategy.Status() }

func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		RewrittenText: c.rewritten,
		Error:         c.errMsg,
		Loading:       c.loading.Load(),
		Status:        c.strategy.Status(),
	}
}

// Close releases the live resource and invalidates any response still in
// flight.
func (c *Client) Close() {
	c.seq.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy.Release()
}

func (c *Client) post(ctx context.Context, body protocol.SynthesizeRequest) (protocol.SynthesizeResponse, error) {
	var out protocol.SynthesizeResponse
	payload, err := json.Marshal(body)
	if err != nil {
		return out, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return out, &TransportError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return out, &TransportError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, c.statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, &TransportError{Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return out, nil
}

// statusError prefers the server's own error text over the generic one.
func (c *Client) statusError(resp *http.Response) *TransportError {
	msg := c.printer.Sprintf(msgServerDefault)
	var body protocol.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err == nil {
		if s := strings.TrimSpace(body.Error); s != "" {
			msg = s
		}
	}
	return &TransportError{Status: resp.StatusCode, Message: msg}
}

func (c *Client) failLocked(err error) {
	detail := c.printer.Sprintf(msgUnexpected)
	var terr *TransportError
	if errors.As(err, &terr) {
		detail = terr.Message
		if terr.Err != nil {
			detail += ": " + terr.Err.Error()
		}
	}
	c.logger.Warn("submission failed", slogError(err))
	c.errMsg = c.printer.Sprintf(msgGenerateFailed, detail)
}

func sniffContentType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "audio/wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}
