package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/bus"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Instance is the last known state of one gateway on the bus.
type Instance struct {
	ID       string             `json:"id"`
	Service  string             `json:"service"`
	Backends []protocol.Backend `json:"backends"`
	LastSeen time.Time          `json:"last_seen"`
	Healthy  bool               `json:"healthy"`
}

type Options struct {
	InstanceID string
	Service    string
	Backends   []protocol.Backend
	Interval   time.Duration
	Timeout    time.Duration
}

// Registry announces this gateway, publishes heartbeats and tracks every
// other gateway sharing the bus.
type Registry struct {
	opts      Options
	log       *slog.Logger
	bus       *bus.Client
	mu        sync.RWMutex
	instances map[string]*Instance
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	subs      []*nats.Subscription
	gaugeReg  metric.Registration
}

func New(ctx context.Context, busClient *bus.Client, opts Options, log *slog.Logger) (*Registry, error) {
	if opts.InstanceID == "" {
		return nil, errors.New("presence: instance id required")
	}
	if opts.Interval <= 0 || opts.Timeout <= opts.Interval {
		return nil, fmt.Errorf("presence: timeout %s must exceed interval %s", opts.Timeout, opts.Interval)
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		opts:      opts,
		log:       log.With(slog.String("component", "presence"), slog.String("instance_id", opts.InstanceID)),
		bus:       busClient,
		instances: make(map[string]*Instance),
		cancel:    cancel,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slogError(err))
	}
	if err := r.subscribe(); err != nil {
		cancel()
		return nil, err
	}

	r.wg.Add(2)
	go r.runHeartbeat(ctx)
	go r.monitorHealth(ctx)

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce instance", slogError(err))
	}
	return r, nil
}

func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
	if r.gaugeReg != nil {
		_ = r.gaugeReg.Unregister()
	}
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectGatewayAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectGatewayHeartbeat, r.handleHeartbeat)
	if err != nil {
		_ = announceSub.Unsubscribe()
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)
	return nil
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := protocol.GatewayHeartbeat{InstanceID: r.opts.InstanceID, Timestamp: time.Now().UTC()}
			if err := r.bus.PublishJSON(ctx, protocol.GatewayHeartbeatSubject(r.opts.InstanceID), hb); err != nil {
				r.log.Warn("failed to publish heartbeat", slogError(err))
			}
		}
	}
}

func (r *Registry) monitorHealth(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.Timeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) announce() error {
	msg := protocol.GatewayAnnounce{
		InstanceID: r.opts.InstanceID,
		Service:    r.opts.Service,
		Backends:   r.opts.Backends,
		Timestamp:  time.Now().UTC(),
	}
	if err := r.bus.PublishJSON(context.Background(), protocol.SubjectGatewayAnnounce, msg); err != nil {
		return err
	}
	r.update(msg.InstanceID, &msg, msg.Timestamp)
	return nil
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var ann protocol.GatewayAnnounce
	if err := json.Unmarshal(msg.Data, &ann); err != nil || ann.InstanceID == "" {
		r.log.Warn("invalid announce message", slog.Int("bytes", len(msg.Data)))
		return
	}
	if ann.Timestamp.IsZero() {
		ann.Timestamp = time.Now().UTC()
	}
	// Answer newcomers so they learn our backends without waiting.
	if fresh := r.update(ann.InstanceID, &ann, ann.Timestamp); fresh && ann.InstanceID != r.opts.InstanceID {
		if err := r.announce(); err != nil {
			r.log.Warn("failed to answer announce", slogError(err))
		}
	}
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.GatewayHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil || hb.InstanceID == "" {
		r.log.Warn("invalid heartbeat message", slog.Int("bytes", len(msg.Data)))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	r.update(hb.InstanceID, nil, hb.Timestamp)
}

// update records a sighting and reports whether id was unknown. Heartbeats
// from an instance whose announce was missed still create an entry with no
// backends.
func (r *Registry) update(id string, ann *protocol.GatewayAnnounce, seen time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, known := r.instances[id]
	if !known {
		inst = &Instance{ID: id}
		r.instances[id] = inst
	}
	if ann != nil {
		inst.Service = ann.Service
		inst.Backends = append([]protocol.Backend(nil), ann.Backends...)
	}
	if seen.After(inst.LastSeen) {
		inst.LastSeen = seen
	}
	inst.Healthy = true
	return !known
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, inst := range r.instances {
		if now.Sub(inst.LastSeen) > r.opts.Timeout {
			if inst.Healthy {
				r.log.Info("gateway instance went silent", slog.String("peer", inst.ID))
			}
			inst.Healthy = false
		}
	}
}

// Healthy reports whether this instance still sees its own heartbeats.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[r.opts.InstanceID]
	return ok && inst.Healthy
}

func (r *Registry) Query(filter func(Instance) bool) []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Instance
	for _, inst := range r.instances {
		cp := *inst
		cp.Backends = append([]protocol.Backend(nil), inst.Backends...)
		if filter == nil || filter(cp) {
			out = append(out, cp)
		}
	}
	return out
}

// WithBackend matches instances wired to the given kind and mode.
func WithBackend(kind, mode string) func(Instance) bool {
	return func(inst Instance) bool {
		for _, b := range inst.Backends {
			if b.Kind == kind && b.Mode == mode {
				return true
			}
		}
		return false
	}
}

func HealthyOnly(inst Instance) bool { return inst.Healthy }

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/a0799406417-svg/gemini-tts-app/presence")
	gauge, err := meter.Int64ObservableGauge("tts_gateway.instances",
		metric.WithDescription("Gateway instances seen on the bus with a recent heartbeat"))
	if err != nil {
		return err
	}
	r.gaugeReg, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(len(r.Query(HealthyOnly))))
		return nil
	}, gauge)
	return err
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
