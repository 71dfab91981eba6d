package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/bus"
	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
	"github.com/a0799406417-svg/gemini-tts-app/internal/eventstore"
	"github.com/a0799406417-svg/gemini-tts-app/internal/httpapi"
	"github.com/a0799406417-svg/gemini-tts-app/internal/natsserver"
	"github.com/a0799406417-svg/gemini-tts-app/internal/presence"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
	"github.com/a0799406417-svg/gemini-tts-app/internal/rewrite"
	"github.com/a0799406417-svg/gemini-tts-app/internal/synthesis"
	"github.com/a0799406417-svg/gemini-tts-app/internal/tts"
	"github.com/google/uuid"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	natsServer  *natsserver.EmbeddedServer
	busClient   *bus.Client
	presence    *presence.Registry
	eventStore  *eventstore.Store
	synth       tts.Synthesizer
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start wires every component, serves HTTP and blocks until ctx is done.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	defer r.closeAll()

	publisher, err := r.startBus(ctx)
	if err != nil {
		return err
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.eventStore = store
	if store.Enabled() {
		r.startPruner(ctx)
	}

	httpClient := &http.Client{}
	generator, err := rewrite.New(ctx, r.cfg.Rewrite, httpClient)
	if err != nil {
		return fmt.Errorf("build rewrite backend: %w", err)
	}
	synth, err := tts.New(ctx, r.cfg.TTS, httpClient)
	if err != nil {
		return fmt.Errorf("build tts backend: %w", err)
	}
	r.synth = synth

	svc, err := synthesis.NewService(r.cfg, synthesis.Deps{
		Generator:   generator,
		Synthesizer: synth,
		Recorder:    store,
		Publisher:   publisher,
		Logger:      r.logger,
	})
	if err != nil {
		return fmt.Errorf("build synthesis service: %w", err)
	}

	if r.busClient != nil {
		if err := r.startPresence(ctx); err != nil {
			return err
		}
	}

	opts := []httpapi.Option{httpapi.WithReadiness(r.isReady)}
	if metricsHandler != nil {
		opts = append(opts, httpapi.WithMetrics(metricsHandler))
	}
	if store.Enabled() {
		opts = append(opts, httpapi.WithTimeline(store))
	}
	if r.presence != nil {
		opts = append(opts, httpapi.WithPeers(r.presence))
	}
	api := httpapi.New(r.cfg.HTTP, svc, r.logger, opts...)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slogError(err))
			serveErr <- err
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("rewrite_mode", r.cfg.Rewrite.Mode),
		slog.String("tts_mode", r.cfg.TTS.Mode),
		slog.String("allowed_origin", r.cfg.HTTP.AllowedOrigin))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	cancel()
	r.wg.Wait()

	return runErr
}

// startBus returns nil without error when the bus is disabled.
func (r *Runtime) startBus(ctx context.Context) (synthesis.Publisher, error) {
	if !r.cfg.Bus.Enabled {
		return nil, nil
	}
	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		ns, err := natsserver.Start(busCfg, r.logger.With(slog.String("component", "nats")))
		if err != nil {
			return nil, err
		}
		r.natsServer = ns
		busCfg.Servers = []string{ns.ClientURL()}
	}
	client, err := bus.Connect(ctx, r.cfg.ServiceName, busCfg, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return nil, err
	}
	r.busClient = client
	if busCfg.Embedded {
		if err := client.EnsureStream(protocol.StreamSynthesis, protocol.SubjectSynthesisAll); err != nil {
			r.logger.Warn("synthesis events will not be retained", slogError(err))
		}
	}
	return client, nil
}

func (r *Runtime) startPresence(ctx context.Context) error {
	id := r.cfg.Bus.InstanceID
	if id == "" {
		id = uuid.NewString()
	}
	reg, err := presence.New(ctx, r.busClient, presence.Options{
		InstanceID: id,
		Service:    r.cfg.ServiceName,
		Backends: []protocol.Backend{
			{Kind: "rewrite", Mode: r.cfg.Rewrite.Mode, Model: r.cfg.Rewrite.Model},
			{Kind: "tts", Mode: r.cfg.TTS.Mode, Model: r.cfg.TTS.Voice},
		},
		Interval: time.Duration(r.cfg.Bus.HeartbeatIntervalMS) * time.Millisecond,
		Timeout:  time.Duration(r.cfg.Bus.HeartbeatTimeoutMS) * time.Millisecond,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("start presence: %w", err)
	}
	r.presence = reg
	return nil
}

// isReady also requires our own heartbeats to come back when the bus is on.
func (r *Runtime) isReady() bool {
	if !r.ready.Load() {
		return false
	}
	return r.presence == nil || r.presence.Healthy()
}

func (r *Runtime) startPruner(ctx context.Context) {
	interval := time.Duration(r.cfg.EventStore.PruneIntervalMS) * time.Millisecond
	if interval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.eventStore.Prune(ctx); err != nil && ctx.Err() == nil {
					r.logger.Warn("event store prune failed", slogError(err))
				}
			}
		}
	}()
}

func (r *Runtime) closeAll() {
	if r.synth != nil {
		if err := tts.Close(r.synth); err != nil {
			r.logger.Warn("tts backend close error", slogError(err))
		}
	}
	if r.eventStore != nil {
		if err := r.eventStore.Close(); err != nil {
			r.logger.Warn("event store close error", slogError(err))
		}
	}
	r.presence.Close()
	r.busClient.Close()
	r.natsServer.Shutdown()

	if r.tracerClose != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.tracerClose(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
