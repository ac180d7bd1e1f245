// Package backoffpkg computes the delays inserted between transaction retry attempts.
package backoffpkg

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Default values of the policy used when nothing is configured.
const (
	DefaultBaseDelay    = 100 * time.Millisecond
	DefaultJitterWindow = 100 * time.Millisecond
	DefaultMaxDelay     = 10 * time.Second
)

const maxShift = 62

// Source is the random source used to draw jitter.
type Source interface {
	Int63n(n int64) int64
}

// lockedSource makes a *rand.Rand safe for concurrent use.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) Int63n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.r.Int63n(n)
}

// processRand is seeded once at process start and shared by every policy
// that was not given its own generator.
var processRand Source = &lockedSource{r: rand.New(rand.NewSource(time.Now().UnixNano()))}

// Policy holds the backoff parameters.
//
// The delay for a retry is min(MaxDelay, BaseDelay*2^attempt) plus a uniform
// random jitter in [0, JitterWindow). A zero MaxDelay leaves the exponential
// term uncapped (it saturates instead of overflowing).
type Policy struct {
	BaseDelay    time.Duration
	JitterWindow time.Duration
	MaxDelay     time.Duration

	rnd Source
}

// New returns a policy using the process-wide random generator.
func New(base, jitter, max time.Duration) Policy {
	return Policy{
		BaseDelay:    base,
		JitterWindow: jitter,
		MaxDelay:     max,
	}
}

// DefaultPolicy returns the policy used when no configuration is supplied.
func DefaultPolicy() Policy {
	return New(DefaultBaseDelay, DefaultJitterWindow, DefaultMaxDelay)
}

// WithRand returns a copy of the policy that draws jitter from r.
// Tests inject a seeded generator to make delays reproducible.
// A nil r leaves the policy unchanged.
func (p Policy) WithRand(r *rand.Rand) Policy {
	if r == nil {
		return p
	}

	p.rnd = &lockedSource{r: r}
	return p
}

// Floor returns the capped exponential term for attempt, without jitter.
// It is the lower bound of Delay(attempt).
func (p Policy) Floor(attempt int) time.Duration {
	d := Exponential(p.BaseDelay, attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}

	return d
}

// Delay returns how long to sleep before the retry that follows attempt.
// Attempt 0 is the first retry.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Floor(attempt)

	j := p.jitter()
	if d > math.MaxInt64-j {
		return time.Duration(math.MaxInt64)
	}

	return d + j
}

func (p Policy) jitter() time.Duration {
	if p.JitterWindow <= 0 {
		return 0
	}

	src := p.rnd
	if src == nil {
		src = processRand
	}

	return time.Duration(src.Int63n(int64(p.JitterWindow)))
}

// Exponential returns base * 2^attempt, saturating at math.MaxInt64.
// Negative attempts are treated as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return base * time.Duration(multiplier)
}
