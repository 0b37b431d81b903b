// Package throttler implements §4.11: a process-local duplicate window
// plus an hourly rate limit, interposed before notification dispatch.
package throttler

import (
	"sync"
	"time"

	"github.com/monitoring/pipeline/internal/codec"
)

// cleanupHorizon bounds how long a duplicate-window entry is kept before
// a cleanup sweep removes it, independent of duplicateSuppressionMinutes.
const cleanupHorizon = 2 * time.Hour

// Config holds the throttler's tunables (§6: notifications.throttling.*).
type Config struct {
	DuplicateSuppressionMinutes int
	MaxNotificationsPerHour     int
}

// Throttler tracks per-key duplicate timestamps and hourly counts. It is
// process-local, not distributed (§4.11) — safe for concurrent use by
// many notification goroutines.
type Throttler struct {
	cfg Config

	mu        sync.Mutex
	lastSeen  map[string]time.Time  // key: service:alertType
	hourCount map[hourKey]int       // key: (service, hour bucket)
	now       func() time.Time
}

// hourKey scopes an hourly notification count to one service and hour.
type hourKey struct {
	service string
	bucket  time.Time
}

// New builds a Throttler.
func New(cfg Config) *Throttler {
	return &Throttler{
		cfg:       cfg,
		lastSeen:  make(map[string]time.Time),
		hourCount: make(map[hourKey]int),
		now:       time.Now,
	}
}

// WithClock overrides the throttler's clock, for tests.
func (t *Throttler) WithClock(now func() time.Time) *Throttler {
	t.now = now
	return t
}

// Allow applies the duplicate window then the hourly rate limit, in
// order (§4.11). On acceptance it records the decision so subsequent
// calls see it. Returns true if the alert should be suppressed.
func (t *Throttler) Allow(a *codec.AlertEvent) (suppress bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.cleanupLocked(now)

	dupKey := a.ServiceName + ":" + a.AlertType
	if last, ok := t.lastSeen[dupKey]; ok {
		if now.Sub(last) < time.Duration(t.cfg.DuplicateSuppressionMinutes)*time.Minute {
			return true
		}
	}

	hk := hourKey{service: a.ServiceName, bucket: now.Truncate(time.Hour)}
	if t.hourCount[hk] >= t.cfg.MaxNotificationsPerHour {
		return true
	}

	t.lastSeen[dupKey] = now
	t.hourCount[hk]++
	return false
}

// cleanupLocked removes duplicate entries older than cleanupHorizon and
// hour-counter entries whose bucket is not the current hour. Called from
// Allow (every record); t.mu must already be held.
func (t *Throttler) cleanupLocked(now time.Time) {
	for k, ts := range t.lastSeen {
		if now.Sub(ts) > cleanupHorizon {
			delete(t.lastSeen, k)
		}
	}

	currentBucket := now.Truncate(time.Hour)
	for k := range t.hourCount {
		if !k.bucket.Equal(currentBucket) {
			delete(t.hourCount, k)
		}
	}
}
