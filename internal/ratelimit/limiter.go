// Package ratelimit implements a per-user sliding-window request limiter.
//
// Each user keeps the timestamps of admitted requests in arrival order.
// Entries older than the window are pruned before counting, and a rejected
// request is never recorded, so retries while limited do not extend the
// wait.
package ratelimit

import (
	"sync"
	"time"

	"github.com/iconidentify/grabbot/internal/domain"
)

const (
	// DefaultWindow is the length of the sliding window.
	DefaultWindow = time.Minute

	// DefaultLimit is the number of admissions allowed per window.
	DefaultLimit = 15
)

// Config holds limiter configuration.
type Config struct {
	Window time.Duration
	Limit  int
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Limiter is a sliding-window log limiter keyed by user. It is safe for
// concurrent use; a single mutex guards the whole map.
type Limiter struct {
	window time.Duration
	limit  int
	clock  func() time.Time

	mu   sync.Mutex
	hits map[domain.UserID][]time.Time
}

// New creates a limiter. Non-positive values fall back to the defaults.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Limiter{
		window: cfg.Window,
		limit:  cfg.Limit,
		clock:  cfg.Clock,
		hits:   make(map[domain.UserID][]time.Time),
	}
}

// Limit returns the number of admissions allowed per window.
func (l *Limiter) Limit() int {
	return l.limit
}

// Allow is Admit evaluated at the limiter's clock. The clock is read under
// the lock so concurrent admissions are recorded in order.
func (l *Limiter) Allow(userID domain.UserID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admit(userID, l.clock())
}

// Admit prunes the user's expired entries, then records now and returns true
// if fewer than limit entries remain. Otherwise it returns false and records
// nothing.
func (l *Limiter) Admit(userID domain.UserID, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admit(userID, now)
}

func (l *Limiter) admit(userID domain.UserID, now time.Time) bool {
	recent := l.prune(userID, now)
	if len(recent) >= l.limit {
		return false
	}
	l.hits[userID] = append(recent, now)
	return true
}

// RetryAfter returns how long until the user gets a free slot, or zero if a
// request made at now would be admitted.
func (l *Limiter) RetryAfter(userID domain.UserID, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(userID, now)
	if len(recent) < l.limit {
		return 0
	}
	// A slot frees when the limit-th most recent entry leaves the window.
	oldest := recent[len(recent)-l.limit]
	return oldest.Add(l.window).Sub(now)
}

// Remaining returns how many more requests the user may make at now.
func (l *Limiter) Remaining(userID domain.UserID, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.limit - len(l.prune(userID, now))
	if n < 0 {
		return 0
	}
	return n
}

// Compact drops users whose every entry has left the window. It returns the
// number of users removed.
func (l *Limiter) Compact(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for userID := range l.hits {
		if len(l.prune(userID, now)) == 0 {
			removed++
		}
	}
	return removed
}

// Users returns the number of users currently tracked.
func (l *Limiter) Users() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// prune drops expired entries for userID and returns what remains. Users with
// nothing left are removed from the map. Callers must hold l.mu.
func (l *Limiter) prune(userID domain.UserID, now time.Time) []time.Time {
	entries, ok := l.hits[userID]
	if !ok {
		return nil
	}

	kept := entries[:0]
	for _, at := range entries {
		if now.Sub(at) < l.window {
			kept = append(kept, at)
		}
	}

	if len(kept) == 0 {
		delete(l.hits, userID)
		return nil
	}
	l.hits[userID] = kept
	return kept
}
