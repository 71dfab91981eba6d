package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/eventstore"
	"github.com/a0799406417-svg/gemini-tts-app/internal/presence"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
	"github.com/go-chi/chi/v5"
)

const maxTimelineEvents = 500

// Timeline reads back the recorded events of one request.
type Timeline interface {
	ListRequestEvents(ctx context.Context, requestID string, limit int) ([]eventstore.Event, error)
}

// Peers answers which gateway instances share the bus.
type Peers interface {
	Query(filter func(presence.Instance) bool) []presence.Instance
}

// WithTimeline mounts GET /requests/{requestID}/events.
func WithTimeline(t Timeline) Option {
	return func(a *API) { a.timeline = t }
}

// WithPeers mounts GET /instances.
func WithPeers(p Peers) Option {
	return func(a *API) { a.peers = p }
}

type timelineEvent struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Privacy   string          `json:"privacy"`
	CreatedAt time.Time       `json:"created_at"`
}

type timelineResponse struct {
	RequestID string          `json:"request_id"`
	Events    []timelineEvent `json:"events"`
}

type instancesResponse struct {
	Instances []presence.Instance `json:"instances"`
}

func (api *API) handleRequestEvents(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, protocol.ErrTextBadQuery)
			return
		}
		limit = min(n, maxTimelineEvents)
	}

	events, err := api.timeline.ListRequestEvents(r.Context(), requestID, limit)
	if err != nil {
		api.logger.Error("list request events failed", slogError(err))
		writeError(w, http.StatusInternalServerError, protocol.ErrTextProcessing)
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, protocol.ErrTextNotFound)
		return
	}

	out := timelineResponse{RequestID: requestID, Events: make([]timelineEvent, 0, len(events))}
	for _, ev := range events {
		te := timelineEvent{Type: ev.Type, Privacy: ev.Privacy, CreatedAt: ev.CreatedAt}
		if json.Valid(ev.Payload) {
			te.Payload = ev.Payload
		} else if len(ev.Payload) > 0 {
			te.Payload, _ = json.Marshal(string(ev.Payload))
		}
		out.Events = append(out.Events, te)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleInstances lists known gateways. kind and mode narrow the list to
// instances wired to that backend; healthy=true drops silent ones.
func (api *API) handleInstances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, mode := q.Get("kind"), q.Get("mode")
	healthyOnly := q.Get("healthy") == "true"

	var byBackend func(presence.Instance) bool
	if kind != "" && mode != "" {
		byBackend = presence.WithBackend(kind, mode)
	}
	instances := api.peers.Query(func(inst presence.Instance) bool {
		if healthyOnly && !presence.HealthyOnly(inst) {
			return false
		}
		return byBackend == nil || byBackend(inst)
	})
	if instances == nil {
		instances = []presence.Instance{}
	}
	writeJSON(w, http.StatusOK, instancesResponse{Instances: instances})
}
