package synthesis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
	"github.com/a0799406417-svg/gemini-tts-app/internal/eventstore"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
	"github.com/a0799406417-svg/gemini-tts-app/internal/rewrite"
	"github.com/a0799406417-svg/gemini-tts-app/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	output  string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, req rewrite.Request, consumer func(rewrite.Chunk) error) error {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return consumer(rewrite.Chunk{RequestID: req.RequestID, Content: f.output})
}

type fakeSynth struct {
	mu    sync.Mutex
	calls int
	last  tts.SynthRequest
	audio []byte
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, req tts.SynthRequest) (tts.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return tts.Audio{}, f.err
	}
	return tts.Audio{Data: f.audio, Encoding: req.Encoding}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []string
	events   []eventstore.Event
}

func (f *fakeRecorder) AppendRequest(_ context.Context, requestID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, requestID)
	return nil
}

func (f *fakeRecorder) AppendEvent(_ context.Context, evt eventstore.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeRecorder) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	events   []protocol.SynthesisEvent
	err      error
}

func (f *fakePublisher) PublishJSON(_ context.Context, subject string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	if evt, ok := v.(protocol.SynthesisEvent); ok {
		f.events = append(f.events, evt)
	}
	return f.err
}

type harness struct {
	svc    *Service
	gen    *fakeGenerator
	synth  *fakeSynth
	rec    *fakeRecorder
	pub    *fakePublisher
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gen:    &fakeGenerator{output: "  שלום חם וידידותי  "},
		synth:  &fakeSynth{audio: []byte("ID3-fake-mp3-bytes")},
		rec:    &fakeRecorder{},
		pub:    &fakePublisher{},
		spans:  tracetest.NewSpanRecorder(),
		reader: sdkmetric.NewManualReader(),
	}
	svc, err := NewService(config.Default(), Deps{
		Generator:      h.gen,
		Synthesizer:    h.synth,
		Recorder:       h.rec,
		Publisher:      h.pub,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(h.reader)),
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans)),
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) outcomes(t *testing.T) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, h.reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "tts_gateway.requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("outcome"))
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestHandleSuccess(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Handle(context.Background(), Request{OriginalText: "שלום", Tone: "ידידותי"})
	require.NoError(t, err)

	assert.Equal(t, "שלום חם וידידותי", res.RewrittenText)
	assert.Equal(t, len(h.synth.audio), len(res.Audio.Data))
	assert.Equal(t, "audio/mpeg", res.Audio.ContentType)
	assert.NotEmpty(t, res.RequestID)

	require.Len(t, h.gen.prompts, 1)
	assert.Contains(t, h.gen.prompts[0], "ידידותי")
	assert.Contains(t, h.gen.prompts[0], "שלום")

	assert.Equal(t, "שלום חם וידידותי", h.synth.last.Text)
	assert.Equal(t, tts.VoiceSelection{LanguageCode: "he-IL", Name: "he-IL-Wavenet-A"}, h.synth.last.Voice)
	assert.Equal(t, "MP3", h.synth.last.Encoding)

	assert.Equal(t, []string{res.RequestID}, h.rec.requests)
	assert.Equal(t, []string{eventstore.TypeRequested, eventstore.TypeRewritten, eventstore.TypeSynthesized}, h.rec.types())
	for _, evt := range h.rec.events {
		assert.NotContains(t, string(evt.Payload), "שלום", "payloads must not carry texts")
		assert.NotEmpty(t, evt.TraceID)
	}

	require.Equal(t, []string{protocol.SubjectSynthesisCompleted}, h.pub.subjects)
	assert.Equal(t, "ok", h.pub.events[0].Outcome)
	assert.Equal(t, len(h.synth.audio), h.pub.events[0].AudioBytes)

	assert.Equal(t, int64(1), h.outcomes(t)["ok"])

	names := map[string]bool{}
	for _, span := range h.spans.Ended() {
		names[span.Name()] = true
	}
	assert.True(t, names["synthesis.handle"])
	assert.True(t, names["synthesis.rewrite"])
	assert.True(t, names["synthesis.tts"])
}

func TestHandleRequestVoice(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Handle(context.Background(), Request{
		OriginalText: "hello",
		Tone:         "calm",
		Voice:        tts.VoiceSelection{LanguageCode: "en-US", Name: "en-US-Wavenet-D"},
	})
	require.NoError(t, err)
	assert.Equal(t, "en-US-Wavenet-D", h.synth.last.Voice.Name)
	assert.Equal(t, "en-US", h.synth.last.Voice.LanguageCode)
}

func TestHandleValidation(t *testing.T) {
	cases := []struct {
		name string
		text string
		tone string
	}{
		{"empty text", "", "כלשהו"},
		{"blank text", "   \n", "calm"},
		{"empty tone", "hello", ""},
		{"both blank", " ", "\t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Handle(context.Background(), Request{OriginalText: tc.text, Tone: tc.tone})

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Zero(t, h.gen.calls)
			assert.Zero(t, h.synth.calls)
			assert.Empty(t, h.rec.events)
			assert.Empty(t, h.pub.subjects)
			assert.Equal(t, int64(1), h.outcomes(t)["invalid"])
		})
	}
}

func TestHandleEmptyRewriteSkipsSynthesis(t *testing.T) {
	h := newHarness(t)
	h.gen.output = "   "

	_, err := h.svc.Handle(context.Background(), Request{OriginalText: "hello", Tone: "calm"})

	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, StageRewrite, uerr.Stage)
	assert.ErrorIs(t, err, rewrite.ErrEmptyCompletion)
	assert.Zero(t, h.synth.calls)
	assert.Equal(t, []string{eventstore.TypeRequested, eventstore.TypeFailed}, h.rec.types())
	assert.Equal(t, []string{protocol.SubjectSynthesisFailed}, h.pub.subjects)
	assert.Equal(t, "rewrite", h.pub.events[0].Stage)
	assert.Equal(t, int64(1), h.outcomes(t)["rewrite_error"])
}

func TestHandleRewriteError(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("quota exceeded")
	h.gen.err = boom

	_, err := h.svc.Handle(context.Background(), Request{OriginalText: "hello", Tone: "calm"})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, h.synth.calls)
}

func TestHandleSynthesisFailure(t *testing.T) {
	h := newHarness(t)
	h.synth.err = errors.New("permission denied")

	_, err := h.svc.Handle(context.Background(), Request{OriginalText: "hello", Tone: "calm"})

	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, StageTTS, uerr.Stage)
	assert.Equal(t, 1, h.gen.calls)
	assert.Equal(t, int64(1), h.outcomes(t)["tts_error"])
}

func TestHandleEmptyAudio(t *testing.T) {
	h := newHarness(t)
	h.synth.audio = nil

	_, err := h.svc.Handle(context.Background(), Request{OriginalText: "hello", Tone: "calm"})
	assert.ErrorIs(t, err, tts.ErrEmptyAudio)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	h := newHarness(t)
	h.pub.err = errors.New("nats down")

	_, err := h.svc.Handle(context.Background(), Request{OriginalText: "hello", Tone: "calm"})
	assert.NoError(t, err)
}

func TestVoices(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Voices(context.Background(), "he-IL")
	assert.ErrorIs(t, err, ErrVoicesUnsupported)

	svc, err := NewService(config.Default(), Deps{Generator: h.gen, Synthesizer: tts.NewMockSynth(8000)})
	require.NoError(t, err)
	voices, err := svc.Voices(context.Background(), "he-IL")
	require.NoError(t, err)
	assert.Len(t, voices, 2)
}

func TestNewServiceRequiresBackends(t *testing.T) {
	_, err := NewService(config.Default(), Deps{Generator: &fakeGenerator{}})
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Rewrite.PromptTemplate = "{{.Tone"
	_, err = NewService(cfg, Deps{Generator: &fakeGenerator{}, Synthesizer: &fakeSynth{}})
	assert.Error(t, err)
}
