package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
	"github.com/a0799406417-svg/gemini-tts-app/internal/synthesis"
	"github.com/a0799406417-svg/gemini-tts-app/internal/tts"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	slogchi "github.com/samber/slog-chi"
)

// Service is the part of the synthesis service the HTTP layer needs.
type Service interface {
	Handle(ctx context.Context, req synthesis.Request) (synthesis.Result, error)
	Voices(ctx context.Context, languageCode string) ([]tts.Voice, error)
}

type API struct {
	cfg      config.HTTPConfig
	svc      Service
	logger   *slog.Logger
	metrics  http.Handler
	ready    func() bool
	timeline Timeline
	peers    Peers
}

type Option func(*API)

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(a *API) { a.metrics = h }
}

// WithReadiness makes /readyz answer 503 until ready returns true.
func WithReadiness(ready func() bool) Option {
	return func(a *API) { a.ready = ready }
}

func New(cfg config.HTTPConfig, svc Service, logger *slog.Logger, opts ...Option) *API {
	api := &API{
		cfg:    cfg,
		svc:    svc,
		logger: logger.With(slog.String("component", "http")),
	}
	for _, opt := range opts {
		opt(api)
	}
	return api
}

func (api *API) NewRouter() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(slogchi.New(api.logger))
	router.Use(middleware.Recoverer)
	router.Use(api.originGuard)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{api.cfg.AllowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	router.Get("/healthz", api.handleHealth)
	router.Get("/readyz", api.handleReady)
	if api.metrics != nil {
		router.Handle("/metrics", api.metrics)
	}

	router.Post("/", api.handleSynthesize)
	router.Post("/api/synthesize", api.handleSynthesize)
	router.Get("/voices", api.handleVoices)
	if api.timeline != nil {
		router.Get("/requests/{requestID}/events", api.handleRequestEvents)
	}
	if api.peers != nil {
		router.Get("/instances", api.handleInstances)
	}

	return router
}

// originGuard rejects browser requests from any origin other than the
// configured one. Requests without an Origin header pass.
func (api *API) originGuard(next http.Handler) http.Handler {
	allowed := strings.TrimRight(strings.TrimSpace(api.cfg.AllowedOrigin), "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !strings.EqualFold(strings.TrimRight(origin, "/"), allowed) {
			api.logger.Warn("rejected request from disallowed origin",
				slog.String("origin", origin),
				slog.String("path", r.URL.Path))
			writeError(w, http.StatusForbidden, protocol.ErrTextForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (api *API) requestTimeout() time.Duration {
	if api.cfg.RequestTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(api.cfg.RequestTimeoutMS) * time.Millisecond
}

func (api *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (api *API) handleReady(w http.ResponseWriter, _ *http.Request) {
	if api.ready == nil || api.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
