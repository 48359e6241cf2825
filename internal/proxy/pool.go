// Package proxy tracks the health of outbound proxies and picks one per request.
package proxy

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/telemetry"
)

// ErrUnknownProxy is returned by Report for an id not in the pool.
var ErrUnknownProxy = errors.New("unknown proxy")

// Status is the health state of a proxy.
type Status int

const (
	StatusHealthy Status = iota
	StatusCooldown
	StatusTesting
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusCooldown:
		return "cooldown"
	case StatusTesting:
		return "testing"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Health is the rolling health record of one proxy.
type Health struct {
	ProxyID             string        `json:"proxy_id"`
	SuccessCount        int           `json:"success_count"`
	FailureCount        int           `json:"failure_count"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastLatency         time.Duration `json:"last_latency"`
	Status              Status        `json:"status"`
	CooldownUntil       time.Time     `json:"cooldown_until,omitzero"`
	LastUsed            time.Time     `json:"last_used,omitzero"`
	// Offenses counts how many times the proxy has entered cooldown.
	Offenses int `json:"offenses"`
}

// NoHealthyProxyError reports that every proxy is cooling down. RetryAt is
// the earliest moment one becomes eligible again.
type NoHealthyProxyError struct {
	Total   int
	RetryAt time.Time
}

func (e *NoHealthyProxyError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s: pool has %d proxies", domain.ErrNoHealthyProxy, e.Total)
	}
	return fmt.Sprintf("%s: %d proxies cooling down, next eligible at %s",
		domain.ErrNoHealthyProxy, e.Total, e.RetryAt.Format(time.RFC3339))
}

func (e *NoHealthyProxyError) Unwrap() error { return domain.ErrNoHealthyProxy }

type entry struct {
	endpoint Endpoint
	health   Health
}

// Stats are aggregate pool counts.
type Stats struct {
	Total    int `json:"total"`
	Healthy  int `json:"healthy"`
	Testing  int `json:"testing"`
	Cooldown int `json:"cooldown"`
}

// Pool owns the proxy set and its health. All state is guarded by one mutex;
// events are emitted after it is released.
type Pool struct {
	cfg   Config
	clock clock.Clock
	sink  telemetry.Sink

	mu      sync.Mutex
	entries map[string]*entry
	rng     *rand.Rand
}

// PoolOption customises a Pool.
type PoolOption func(*Pool)

// WithClock injects the time source.
func WithClock(c clock.Clock) PoolOption {
	return func(p *Pool) { p.clock = c }
}

// WithSink sets the sink that receives status transitions.
func WithSink(s telemetry.Sink) PoolOption {
	return func(p *Pool) { p.sink = s }
}

// WithRand fixes the random source used for weighted selection.
func WithRand(r *rand.Rand) PoolOption {
	return func(p *Pool) { p.rng = r }
}

// NewPool creates a pool with every endpoint Healthy.
func NewPool(endpoints []Endpoint, cfg Config, opts ...PoolOption) *Pool {
	p := &Pool{
		cfg:     cfg.WithDefaults(),
		clock:   clock.Real(),
		sink:    telemetry.Nop(),
		entries: make(map[string]*entry, len(endpoints)),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // selection only
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, e := range endpoints {
		p.entries[e.ID] = &entry{endpoint: e, health: Health{ProxyID: e.ID, Status: StatusHealthy}}
	}
	return p
}

type statusChange struct {
	id       string
	from, to Status
	until    time.Time
}

// promoteExpired moves cooldown entries whose window has elapsed to Testing.
// Caller holds p.mu.
func (p *Pool) promoteExpired(now time.Time) []statusChange {
	var changes []statusChange
	for id, e := range p.entries {
		if e.health.Status == StatusCooldown && !now.Before(e.health.CooldownUntil) {
			e.health.Status = StatusTesting
			e.health.ConsecutiveFailures = 0
			changes = append(changes, statusChange{id: id, from: StatusCooldown, to: StatusTesting})
		}
	}
	return changes
}

// weight favours high success rates and low latency. Success rate is
// Laplace-smoothed so new proxies start at 0.5.
func (p *Pool) weight(h Health) float64 {
	rate := float64(h.SuccessCount+1) / float64(h.SuccessCount+h.FailureCount+2)
	w := rate / (1 + h.LastLatency.Seconds())
	if h.Status == StatusTesting {
		w *= p.cfg.TestingWeight
	}
	return w
}

// Select picks a Healthy or Testing proxy by weighted random choice. When the
// drawn proxy ties on weight with others, the one idle the longest wins. It
// fails fast with *NoHealthyProxyError when nothing is eligible.
func (p *Pool) Select() (Endpoint, error) {
	p.mu.Lock()
	now := p.clock.Now()
	changes := p.promoteExpired(now)

	candidates := make([]*entry, 0, len(p.entries))
	var retryAt time.Time
	for _, e := range p.entries {
		if e.health.Status == StatusCooldown {
			if retryAt.IsZero() || e.health.CooldownUntil.Before(retryAt) {
				retryAt = e.health.CooldownUntil
			}
			continue
		}
		candidates = append(candidates, e)
	}

	if len(candidates) == 0 {
		total := len(p.entries)
		p.mu.Unlock()
		p.emit(changes)
		return Endpoint{}, &NoHealthyProxyError{Total: total, RetryAt: retryAt}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].health, candidates[j].health
		if !a.LastUsed.Equal(b.LastUsed) {
			return a.LastUsed.Before(b.LastUsed)
		}
		return a.ProxyID < b.ProxyID
	})

	chosen := p.draw(candidates)
	chosen.health.LastUsed = now
	endpoint := chosen.endpoint
	p.mu.Unlock()

	p.emit(changes)
	return endpoint, nil
}

// weightEpsilon is the tolerance under which two weights are a tie.
const weightEpsilon = 1e-9

// draw performs the weighted choice, then settles ties on the least recently
// used candidate. candidates must be sorted by LastUsed. Caller holds p.mu.
func (p *Pool) draw(candidates []*entry) *entry {
	weights := make([]float64, len(candidates))
	total := 0.0
	for i, e := range candidates {
		weights[i] = p.weight(e.health)
		total += weights[i]
	}

	picked := len(candidates) - 1
	target := p.rng.Float64() * total
	for i, w := range weights {
		if target < w {
			picked = i
			break
		}
		target -= w
	}

	for i, w := range weights {
		if math.Abs(w-weights[picked]) <= weightEpsilon {
			return candidates[i]
		}
	}
	return candidates[picked]
}

// Report records the outcome of a request made through proxy id.
func (p *Pool) Report(id string, success bool, latency time.Duration) error {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownProxy, id)
	}

	now := p.clock.Now()
	h := &e.health
	h.LastLatency = latency

	var change *statusChange
	if success {
		h.SuccessCount++
		h.ConsecutiveFailures = 0
		if h.Status == StatusTesting {
			h.Status = StatusHealthy
			change = &statusChange{id: id, from: StatusTesting, to: StatusHealthy}
		}
	} else {
		h.FailureCount++
		h.ConsecutiveFailures++
		switch {
		case h.Status == StatusTesting:
			change = p.coolDown(h, now)
		case h.Status == StatusHealthy && h.ConsecutiveFailures >= p.cfg.FailureThreshold:
			change = p.coolDown(h, now)
		}
	}
	p.mu.Unlock()

	if change != nil {
		p.emit([]statusChange{*change})
	}
	return nil
}

// coolDown puts h into cooldown. Each repeat offense multiplies the base
// duration, capped at MaxCooldown. Caller holds p.mu.
func (p *Pool) coolDown(h *Health, now time.Time) *statusChange {
	d := time.Duration(float64(p.cfg.CooldownDuration) * math.Pow(p.cfg.CooldownMultiplier, float64(h.Offenses)))
	if d > p.cfg.MaxCooldown || d <= 0 {
		d = p.cfg.MaxCooldown
	}

	from := h.Status
	h.Status = StatusCooldown
	h.CooldownUntil = now.Add(d)
	h.Offenses++
	return &statusChange{id: h.ProxyID, from: from, to: StatusCooldown, until: h.CooldownUntil}
}

func (p *Pool) emit(changes []statusChange) {
	for _, c := range changes {
		fields := map[string]any{"from": c.from.String(), "to": c.to.String()}
		if !c.until.IsZero() {
			fields["cooldown_until"] = c.until
		}
		p.sink.Emit(telemetry.Event{Kind: telemetry.KindProxyHealth, Name: c.id, Fields: fields})
	}
}

// DueForProbe promotes expired cooldowns and returns every proxy on
// probation, for the background prober.
func (p *Pool) DueForProbe() []Endpoint {
	p.mu.Lock()
	changes := p.promoteExpired(p.clock.Now())
	var out []Endpoint
	for _, e := range p.entries {
		if e.health.Status == StatusTesting {
			out = append(out, e.endpoint)
		}
	}
	p.mu.Unlock()

	p.emit(changes)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns aggregate counts. Expired cooldowns are counted as Testing.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	s := Stats{Total: len(p.entries)}
	for _, e := range p.entries {
		switch {
		case e.health.Status == StatusHealthy:
			s.Healthy++
		case e.health.Status == StatusTesting,
			e.health.Status == StatusCooldown && !now.Before(e.health.CooldownUntil):
			s.Testing++
		default:
			s.Cooldown++
		}
	}
	return s
}

// Snapshot returns a copy of every health record, sorted by id.
func (p *Pool) Snapshot() []Health {
	p.mu.Lock()
	out := make([]Health, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.health)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ProxyID < out[j].ProxyID })
	return out
}

// Replace swaps the endpoint set. Health is kept for ids present in both
// the old and new sets; new ids start Healthy.
func (p *Pool) Replace(endpoints []Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[string]*entry, len(endpoints))
	for _, ep := range endpoints {
		if old, ok := p.entries[ep.ID]; ok {
			old.endpoint = ep
			next[ep.ID] = old
			continue
		}
		next[ep.ID] = &entry{endpoint: ep, health: Health{ProxyID: ep.ID, Status: StatusHealthy}}
	}
	p.entries = next
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
