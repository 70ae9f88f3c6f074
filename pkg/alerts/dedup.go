package alerts

import (
	"sync"
	"time"
)

// Dedup is the alert-key -> last-emitted-timestamp table (spec.md's
// DedupTable). It emits a given key at most once per window, and sweeps
// entries older than 2*window on a timer. Grounded on the teacher's
// pkg/notifications NotificationDeduplicator fingerprint-map shape —
// adapted down to exact-string keys only, since spec.md §4.6 specifies a
// literal `proximity:<sorted(A,B)>` / `speed:<deviceId>` key, with no
// fuzzy similarity matching.
type Dedup struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
	clock  func() time.Time
}

// NewDedup creates a dedup table with the given window using the real
// wall clock.
func NewDedup(window time.Duration) *Dedup {
	return NewDedupWithClock(window, time.Now)
}

// NewDedupWithClock creates a dedup table using an injected clock
// function, for deterministic tests of the dedup window.
func NewDedupWithClock(window time.Duration, clock func() time.Time) *Dedup {
	return &Dedup{
		last:   make(map[string]time.Time),
		window: window,
		clock:  clock,
	}
}

// ShouldEmit reports whether key should emit now: true iff there is no
// prior entry, or the window has elapsed since it. On a true result it
// records now against key.
func (d *Dedup) ShouldEmit(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock()
	if last, ok := d.last[key]; ok && now.Sub(last) <= d.window {
		return false
	}
	d.last[key] = now
	return true
}

// Sweep evicts entries older than 2*window, per the periodic dedup-table
// sweep in spec.md §4.6.
func (d *Dedup) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock()
	cutoff := 2 * d.window
	evicted := 0
	for k, t := range d.last {
		if now.Sub(t) > cutoff {
			delete(d.last, k)
			evicted++
		}
	}
	return evicted
}
