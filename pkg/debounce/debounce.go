// Package debounce provides a per-key cooldown gate.
package debounce

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Debouncer allows at most one call per key within Window. Each key holds a
// one-token bucket refilled once per window, so a rejected call does not
// extend the cooldown. State lives in memory and is lost on restart.
type Debouncer[K comparable] struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	keys   map[K]*rate.Limiter
}

type Option[K comparable] func(*Debouncer[K])

// WithClock replaces time.Now. Times returned by time.Now carry a monotonic
// reading, so wall clock jumps do not affect the gate.
func WithClock[K comparable](now func() time.Time) Option[K] {
	return func(d *Debouncer[K]) { d.now = now }
}

func New[K comparable](window time.Duration, opts ...Option[K]) *Debouncer[K] {
	d := &Debouncer[K]{window: window, now: time.Now, keys: map[K]*rate.Limiter{}}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Allow reports whether a call for key may proceed and, if so, records it.
func (d *Debouncer[K]) Allow(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	lim, ok := d.keys[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(d.window), 1)
		d.keys[key] = lim
	}
	return lim.AllowN(d.now(), 1)
}

// Reset forgets key, e.g. when the allowed call later failed.
func (d *Debouncer[K]) Reset(key K) {
	d.mu.Lock()
	delete(d.keys, key)
	d.mu.Unlock()
}

// SetWindow changes the cooldown. Keys already cooling down refill at the new
// rate from now on.
func (d *Debouncer[K]) SetWindow(w time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = w
	now := d.now()
	for _, lim := range d.keys {
		lim.SetLimitAt(now, rate.Every(w))
	}
}

// Prune drops keys whose cooldown has passed and returns how many were dropped.
func (d *Debouncer[K]) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	n := 0
	for k, lim := range d.keys {
		if lim.Limit() == rate.Inf || lim.TokensAt(now) >= 1 {
			delete(d.keys, k)
			n++
		}
	}
	return n
}

func (d *Debouncer[K]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}
