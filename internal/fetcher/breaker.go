package fetcher

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// breakerState is the per-host circuit state.
type breakerState int

const (
	// breakerClosed is the normal state, fetches flow through.
	breakerClosed breakerState = iota
	// breakerOpen means the host keeps failing and fetches are refused.
	breakerOpen
	// breakerHalfOpen lets a single probe through after the cooldown.
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrHostOpen is returned when a fetch is refused because the host's
// circuit is open.
var ErrHostOpen = eris.New("fetcher: host circuit open")

// BreakerOptions controls when a host is suspended.
type BreakerOptions struct {
	// FailureThreshold is the number of consecutive terminal failures
	// before the host is suspended. Default: 5.
	FailureThreshold int

	// Cooldown is how long a suspended host stays refused before a probe
	// fetch is allowed through. Default: 5m.
	Cooldown time.Duration
}

type hostBreaker struct {
	state    breakerState
	failures int
	openedAt time.Time
}

// HostBreakers tracks consecutive fetch failures per source host and
// refuses further fetches from hosts that keep failing, so one blocked or
// dead portal cannot burn the whole run's retry budget. A host that serves
// a block challenge trips the same as one that times out.
type HostBreakers struct {
	mu    sync.Mutex
	hosts map[string]*hostBreaker
	opts  BreakerOptions

	nowFunc func() time.Time
}

// NewHostBreakers creates a per-host breaker registry.
func NewHostBreakers(opts BreakerOptions) *HostBreakers {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Minute
	}
	return &HostBreakers{
		hosts:   make(map[string]*hostBreaker),
		opts:    opts,
		nowFunc: time.Now,
	}
}

func (b *HostBreakers) get(host string) *hostBreaker {
	hb, ok := b.hosts[host]
	if !ok {
		hb = &hostBreaker{state: breakerClosed}
		b.hosts[host] = hb
	}
	return hb
}

// Allow reports whether a fetch from the host may proceed. An open host
// transitions to half-open once the cooldown has elapsed, letting one
// probe through.
func (b *HostBreakers) Allow(host string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	hb := b.get(host)
	switch hb.state {
	case breakerOpen:
		if b.nowFunc().Sub(hb.openedAt) < b.opts.Cooldown {
			return eris.Wrapf(ErrHostOpen, "fetcher: %s suspended", host)
		}
		hb.state = breakerHalfOpen
		zap.L().Info("host probe allowed", zap.String("host", host))
		return nil
	default:
		return nil
	}
}

// Success records a completed fetch, closing the host's circuit.
func (b *HostBreakers) Success(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hb := b.get(host)
	if hb.state != breakerClosed {
		zap.L().Info("host recovered", zap.String("host", host))
	}
	hb.state = breakerClosed
	hb.failures = 0
}

// Failure records a terminal fetch failure. A probe failure in half-open
// reopens the circuit immediately.
func (b *HostBreakers) Failure(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hb := b.get(host)
	hb.failures++

	switch hb.state {
	case breakerHalfOpen:
		hb.state = breakerOpen
		hb.openedAt = b.nowFunc()
		zap.L().Warn("host probe failed, suspending again", zap.String("host", host))
	case breakerClosed:
		if hb.failures >= b.opts.FailureThreshold {
			hb.state = breakerOpen
			hb.openedAt = b.nowFunc()
			zap.L().Warn("host suspended after repeated failures",
				zap.String("host", host),
				zap.Int("failures", hb.failures),
			)
		}
	}
}

// States returns a snapshot of every tracked host's circuit state.
func (b *HostBreakers) States() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make(map[string]string, len(b.hosts))
	for host, hb := range b.hosts {
		states[host] = hb.state.String()
	}
	return states
}
