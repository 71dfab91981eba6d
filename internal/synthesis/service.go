package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
	"github.com/a0799406417-svg/gemini-tts-app/internal/eventstore"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
	"github.com/a0799406417-svg/gemini-tts-app/internal/rewrite"
	"github.com/a0799406417-svg/gemini-tts-app/internal/tts"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/a0799406417-svg/gemini-tts-app/internal/synthesis"

// Request is one rewrite-and-speak job.
type Request struct {
	RequestID    string
	OriginalText string
	Tone         string
	Voice        tts.VoiceSelection
	Origin       string
}

// Result is what the caller gets back on success.
type Result struct {
	RequestID     string
	RewrittenText string
	Audio         tts.Audio
}

// Recorder persists the request timeline. *eventstore.Store satisfies it.
type Recorder interface {
	AppendRequest(ctx context.Context, requestID, origin, privacy string) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
}

// Publisher announces request outcomes. *bus.Client satisfies it.
type Publisher interface {
	PublishJSON(ctx context.Context, subject string, v any) error
}

// Deps are the collaborators of a Service. Generator and Synthesizer are
// required; the rest are optional.
type Deps struct {
	Generator      rewrite.Generator
	Synthesizer    tts.Synthesizer
	Recorder       Recorder
	Publisher      Publisher
	Logger         *slog.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service runs validate, rewrite, synthesize for each request. Steps run in
// order and nothing is shared between requests besides the backends.
type Service struct {
	cfg      config.Config
	gen      rewrite.Generator
	synth    tts.Synthesizer
	prompter *rewrite.Prompter
	recorder Recorder
	pub      Publisher
	logger   *slog.Logger
	tracer   trace.Tracer
	requests metric.Int64Counter
	stageDur metric.Float64Histogram
}

func NewService(cfg config.Config, deps Deps) (*Service, error) {
	if deps.Generator == nil || deps.Synthesizer == nil {
		return nil, fmt.Errorf("synthesis service needs a generator and a synthesizer")
	}
	prompter, err := rewrite.NewPrompter(cfg.Rewrite.PromptTemplate)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mp := deps.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	meter := mp.Meter(instrumentationName)
	requests, err := meter.Int64Counter("tts_gateway.requests",
		metric.WithDescription("Synthesis requests by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}
	stageDur, err := meter.Float64Histogram("tts_gateway.stage.duration",
		metric.WithDescription("Duration of each pipeline stage"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create stage histogram: %w", err)
	}

	return &Service{
		cfg:      cfg,
		gen:      deps.Generator,
		synth:    deps.Synthesizer,
		prompter: prompter,
		recorder: deps.Recorder,
		pub:      deps.Publisher,
		logger:   logger.With(slog.String("component", "synthesis")),
		tracer:   tp.Tracer(instrumentationName),
		requests: requests,
		stageDur: stageDur,
	}, nil
}

// Handle validates req, rewrites the text in the requested tone and
// synthesizes the rewritten text.
func (s *Service) Handle(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ctx, span := s.tracer.Start(ctx, "synthesis.handle",
		trace.WithAttributes(attribute.String("request.id", req.RequestID)))
	defer span.End()

	text := strings.TrimSpace(req.OriginalText)
	tone := strings.TrimSpace(req.Tone)
	var missing []string
	if text == "" {
		missing = append(missing, "originalText")
	}
	if tone == "" {
		missing = append(missing, "tone")
	}
	if len(missing) > 0 {
		s.countOutcome(ctx, "invalid")
		span.SetStatus(codes.Error, "validation failed")
		return Result{}, &ValidationError{Fields: missing}
	}

	voice := s.voiceFor(req.Voice)
	span.SetAttributes(
		attribute.String("synthesis.tone", tone),
		attribute.String("synthesis.voice", voice.Name),
		attribute.Int("synthesis.original_chars", utf8.RuneCountInString(text)),
	)
	logger := s.logger.With(slog.String("request_id", req.RequestID))

	if s.recorder != nil {
		if err := s.recorder.AppendRequest(ctx, req.RequestID, req.Origin, ""); err != nil {
			logger.Warn("failed to record request", slogError(err))
		}
	}
	s.record(ctx, logger, req.RequestID, eventstore.TypeRequested, map[string]any{
		"tone":           tone,
		"voice":          voice.Name,
		"language_code":  voice.LanguageCode,
		"original_chars": utf8.RuneCountInString(text),
	})

	event := protocol.SynthesisEvent{
		RequestID:     req.RequestID,
		Tone:          tone,
		Voice:         voice.Name,
		OriginalChars: utf8.RuneCountInString(text),
	}

	rewritten, err := s.rewrite(ctx, req.RequestID, tone, text)
	if err != nil {
		return Result{}, s.fail(ctx, span, logger, event, start, &UpstreamError{Stage: StageRewrite, Err: err})
	}
	event.RewriteChars = utf8.RuneCountInString(rewritten.Text)
	s.record(ctx, logger, req.RequestID, eventstore.TypeRewritten, map[string]any{
		"rewrite_chars":     event.RewriteChars,
		"prompt_tokens":     rewritten.PromptTokens,
		"completion_tokens": rewritten.CompletionTokens,
		"latency_ms":        rewritten.Latency.Milliseconds(),
	})

	audio, err := s.synthesize(ctx, req.RequestID, rewritten.Text, voice)
	if err != nil {
		return Result{}, s.fail(ctx, span, logger, event, start, &UpstreamError{Stage: StageTTS, Err: err})
	}
	event.AudioBytes = len(audio.Data)
	event.Encoding = audio.Encoding
	s.record(ctx, logger, req.RequestID, eventstore.TypeSynthesized, map[string]any{
		"audio_bytes": len(audio.Data),
		"encoding":    audio.Encoding,
	})

	event.Outcome = "ok"
	event.DurationMS = time.Since(start).Milliseconds()
	event.Timestamp = time.Now().UTC()
	s.publish(ctx, logger, protocol.SubjectSynthesisCompleted, event)
	s.countOutcome(ctx, "ok")
	span.SetStatus(codes.Ok, "")

	logger.Info("synthesis completed",
		slog.Int("rewrite_chars", event.RewriteChars),
		slog.Int("audio_bytes", event.AudioBytes),
		slog.Int64("duration_ms", event.DurationMS))

	return Result{RequestID: req.RequestID, RewrittenText: rewritten.Text, Audio: audio}, nil
}

// Voices lists voices of the synthesis backend.
func (s *Service) Voices(ctx context.Context, languageCode string) ([]tts.Voice, error) {
	lister, ok := s.synth.(tts.VoiceLister)
	if !ok {
		return nil, ErrVoicesUnsupported
	}
	return lister.ListVoices(ctx, languageCode)
}

func (s *Service) voiceFor(v tts.VoiceSelection) tts.VoiceSelection {
	if strings.TrimSpace(v.LanguageCode) == "" {
		v.LanguageCode = s.cfg.TTS.LanguageCode
	}
	if strings.TrimSpace(v.Name) == "" {
		v.Name = s.cfg.TTS.Voice
	}
	return v
}

func (s *Service) rewrite(ctx context.Context, requestID, tone, text string) (rewrite.Result, error) {
	ctx, span := s.tracer.Start(ctx, "synthesis.rewrite")
	defer span.End()
	ctx, cancel := withTimeoutMS(ctx, s.cfg.Rewrite.TimeoutMS)
	defer cancel()

	prompt, err := s.prompter.Build(tone, text)
	if err != nil {
		span.RecordError(err)
		return rewrite.Result{}, err
	}
	req := rewrite.OptionsFromConfig(s.cfg.Rewrite)
	req.RequestID = requestID
	req.Prompt = prompt
	req.Source = text
	req.Tone = tone

	start := time.Now()
	res, err := rewrite.Complete(ctx, s.gen, req)
	s.observeStage(ctx, StageRewrite, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rewrite failed")
		return rewrite.Result{}, err
	}
	span.SetAttributes(
		attribute.Int("rewrite.prompt_tokens", res.PromptTokens),
		attribute.Int("rewrite.completion_tokens", res.CompletionTokens),
	)
	return res, nil
}

func (s *Service) synthesize(ctx context.Context, requestID, text string, voice tts.VoiceSelection) (tts.Audio, error) {
	ctx, span := s.tracer.Start(ctx, "synthesis.tts")
	defer span.End()
	ctx, cancel := withTimeoutMS(ctx, s.cfg.TTS.TimeoutMS)
	defer cancel()

	start := time.Now()
	audio, err := s.synth.Synthesize(ctx, tts.SynthRequest{
		RequestID: requestID,
		Text:      text,
		Voice:     voice,
		Encoding:  s.cfg.TTS.AudioEncoding,
	})
	s.observeStage(ctx, StageTTS, start)
	if err == nil && len(audio.Data) == 0 {
		err = tts.ErrEmptyAudio
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		return tts.Audio{}, err
	}
	if audio.ContentType == "" {
		audio.ContentType = tts.ContentType(audio.Encoding)
	}
	span.SetAttributes(attribute.Int("tts.audio_bytes", len(audio.Data)))
	return audio, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, logger *slog.Logger, event protocol.SynthesisEvent, start time.Time, err *UpstreamError) error {
	logger.Error("synthesis failed", slog.String("stage", string(err.Stage)), slogError(err.Err))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	s.record(ctx, logger, event.RequestID, eventstore.TypeFailed, map[string]any{
		"stage": string(err.Stage),
		"error": err.Err.Error(),
	})
	event.Outcome = "error"
	event.Stage = string(err.Stage)
	event.DurationMS = time.Since(start).Milliseconds()
	event.Timestamp = time.Now().UTC()
	s.publish(ctx, logger, protocol.SubjectSynthesisFailed, event)
	s.countOutcome(ctx, string(err.Stage)+"_error")
	return err
}

func (s *Service) record(ctx context.Context, logger *slog.Logger, requestID, typ string, payload map[string]any) {
	if s.recorder == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("failed to encode event payload", slog.String("type", typ), slogError(err))
		return
	}
	evt := eventstore.Event{RequestID: requestID, Type: typ, Payload: data}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		evt.TraceID = sc.TraceID().String()
	}
	if err := s.recorder.AppendEvent(context.WithoutCancel(ctx), evt); err != nil {
		logger.Warn("failed to record event", slog.String("type", typ), slogError(err))
	}
}

func (s *Service) publish(ctx context.Context, logger *slog.Logger, subject string, event protocol.SynthesisEvent) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishJSON(ctx, subject, event); err != nil {
		logger.Warn("failed to publish synthesis event", slog.String("subject", subject), slogError(err))
	}
}

func (s *Service) countOutcome(ctx context.Context, outcome string) {
	s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *Service) observeStage(ctx context.Context, stage Stage, start time.Time) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	s.stageDur.Record(context.WithoutCancel(ctx), ms, metric.WithAttributes(attribute.String("stage", string(stage))))
}

func withTimeoutMS(ctx context.Context, ms int) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
}
