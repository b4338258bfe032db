// Package ratelimit gates source calls behind per-source token budgets
// and consecutive-failure circuit breakers.
package ratelimit

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DecisionKind is the outcome of an admission check.
type DecisionKind int

const (
	// Allowed grants a slot and consumes one token.
	Allowed DecisionKind = iota
	// Deferred denies the call with a wait hint; no token is consumed.
	Deferred
	// CircuitOpen denies the call until the cool-down elapses,
	// regardless of remaining quota.
	CircuitOpen
)

func (k DecisionKind) String() string {
	switch k {
	case Allowed:
		return "allowed"
	case Deferred:
		return "deferred"
	case CircuitOpen:
		return "circuit-open"
	default:
		return "unknown"
	}
}

// Decision is the result of Gate.Admit. Admit never blocks.
type Decision struct {
	Kind DecisionKind

	// RetryAfter hints how long to wait before retrying a Deferred call.
	RetryAfter time.Duration

	// Until is when an open circuit transitions to half-open.
	Until time.Time
}

// SourceLimit sizes one source's token bucket.
type SourceLimit struct {
	// Rate is the sustained request rate in requests per second.
	Rate float64
	// Burst is the bucket capacity.
	Burst int
}

// Config holds gate-wide circuit breaker settings.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens a circuit.
	FailureThreshold int
	// Cooldown is how long an open circuit denies calls before a probe
	// is allowed through.
	Cooldown time.Duration
}

// DefaultConfig returns the breaker settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

type sourceState struct {
	limiter *rate.Limiter
	limit   SourceLimit

	failures  int
	circuit   circuitState
	openUntil time.Time
}

// Gate owns all cross-request quota state. Every mutation goes through
// Admit, RecordSuccess and RecordFailure; no other component touches it.
type Gate struct {
	mu      sync.Mutex
	sources map[string]*sourceState
	cfg     Config
	now     func() time.Time
}

// New creates a Gate with the given breaker settings.
func New(cfg Config) *Gate {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Gate{
		sources: make(map[string]*sourceState),
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetClock replaces the gate's clock. Intended for tests.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Register sets the token budget for a source. Unregistered sources are
// admitted with a default budget of one request per second.
func (g *Gate) Register(source string, limit SourceLimit) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if limit.Rate <= 0 {
		limit.Rate = 1
	}
	if limit.Burst <= 0 {
		limit.Burst = 1
	}
	g.sources[source] = &sourceState{
		limiter: rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst),
		limit:   limit,
	}
}

func (g *Gate) state(source string) *sourceState {
	st, ok := g.sources[source]
	if !ok {
		st = &sourceState{
			limiter: rate.NewLimiter(rate.Limit(1), 1),
			limit:   SourceLimit{Rate: 1, Burst: 1},
		}
		g.sources[source] = st
	}
	return st
}

// Admit decides whether a call to the source may proceed right now.
// A grant consumes one token; a denial consumes nothing.
func (g *Gate) Admit(source string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(source)
	now := g.now()

	probing := false
	switch st.circuit {
	case circuitOpen:
		if now.Before(st.openUntil) {
			return Decision{Kind: CircuitOpen, Until: st.openUntil}
		}
		// Cool-down elapsed, allow a single probe through the bucket.
		st.circuit = circuitHalfOpen
		probing = true
		slog.Debug("circuit half-open", "source", source)
	case circuitHalfOpen:
		// A probe is already in flight; deny further calls until it reports.
		return Decision{Kind: CircuitOpen, Until: st.openUntil}
	}

	res := st.limiter.ReserveN(now, 1)
	if !res.OK() {
		if probing {
			g.deferProbe(source, st, now, time.Second)
		}
		return Decision{Kind: Deferred, RetryAfter: time.Second}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		if probing {
			g.deferProbe(source, st, now, delay)
		}
		return Decision{Kind: Deferred, RetryAfter: delay}
	}

	return Decision{Kind: Allowed}
}

// deferProbe reopens a half-open circuit whose probe the token bucket
// could not grant. Without this the circuit would stay half-open with no
// probe in flight, denying the source until process restart. The next
// probe window opens once a token exists.
func (g *Gate) deferProbe(source string, st *sourceState, now time.Time, delay time.Duration) {
	st.circuit = circuitOpen
	st.openUntil = now.Add(delay)
	slog.Debug("probe deferred, circuit reopened", "source", source, "until", st.openUntil)
}

// RecordSuccess resets the failure count and closes the circuit.
func (g *Gate) RecordSuccess(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(source)
	st.failures = 0
	if st.circuit != circuitClosed {
		slog.Info("circuit closed", "source", source)
	}
	st.circuit = circuitClosed
	st.openUntil = time.Time{}
}

// RecordFailure counts a failed call. At the threshold the circuit opens
// for the cool-down; a failed half-open probe reopens it immediately.
func (g *Gate) RecordFailure(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(source)
	st.failures++

	switch st.circuit {
	case circuitClosed:
		if st.failures >= g.cfg.FailureThreshold {
			st.circuit = circuitOpen
			st.openUntil = g.now().Add(g.cfg.Cooldown)
			slog.Warn("circuit opened", "source", source, "failures", st.failures, "until", st.openUntil)
		}
	case circuitHalfOpen:
		st.circuit = circuitOpen
		st.openUntil = g.now().Add(g.cfg.Cooldown)
		slog.Warn("circuit reopened after failed probe", "source", source, "until", st.openUntil)
	}
}

// QuotaState is a read-only snapshot of one source's gate state.
type QuotaState struct {
	Source              string    `json:"source"`
	RemainingTokens     float64   `json:"remaining_tokens"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CircuitState        string    `json:"circuit_state"`
	CircuitOpenUntil    time.Time `json:"circuit_open_until,omitempty"`
}

// Snapshot returns the current state of one source.
func (g *Gate) Snapshot(source string) QuotaState {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(source)
	qs := QuotaState{
		Source:              source,
		RemainingTokens:     st.limiter.TokensAt(g.now()),
		ConsecutiveFailures: st.failures,
		CircuitOpenUntil:    st.openUntil,
	}
	switch st.circuit {
	case circuitClosed:
		qs.CircuitState = "closed"
	case circuitOpen:
		qs.CircuitState = "open"
	case circuitHalfOpen:
		qs.CircuitState = "half-open"
	}
	return qs
}

// SnapshotAll returns the state of every registered source.
func (g *Gate) SnapshotAll() []QuotaState {
	g.mu.Lock()
	names := make([]string, 0, len(g.sources))
	for name := range g.sources {
		names = append(names, name)
	}
	g.mu.Unlock()

	sort.Strings(names)
	states := make([]QuotaState, 0, len(names))
	for _, name := range names {
		states = append(states, g.Snapshot(name))
	}
	return states
}
