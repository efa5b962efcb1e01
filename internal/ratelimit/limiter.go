// Package ratelimit implements per-identity admission control for the
// dispatch pipeline.
//
// The algorithm is a sliding log: every admitted call is recorded with its
// timestamp, and a call is denied when the trailing window already holds the
// configured maximum. Unlike fixed windows there is no boundary burst
// artifact; the cost is O(max_requests) memory per active identity.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

type Config struct {
	Enabled     bool
	Window      time.Duration // default 60s
	MaxRequests int           // default 10
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = 10
	}
	return c
}

const shardCount = 16

// Limiter is safe for concurrent use. Identities are spread across shards so
// admission checks for unrelated clients do not contend on one lock.
type Limiter struct {
	cfgMu sync.RWMutex
	cfg   Config

	now func() time.Time

	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func New(cfg Config) *Limiter {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock injects the time source; tests use it to step through windows
// without sleeping.
func NewWithClock(cfg Config, now func() time.Time) *Limiter {
	l := &Limiter{cfg: cfg.withDefaults(), now: now}
	for i := range l.shards {
		l.shards[i].windows = map[string][]time.Time{}
	}
	return l
}

// Apply swaps the limiter configuration at runtime. Existing per-identity
// records are kept; a shrunk window takes effect on the next check.
func (l *Limiter) Apply(cfg Config) {
	l.cfgMu.Lock()
	l.cfg = cfg.withDefaults()
	l.cfgMu.Unlock()
}

func (l *Limiter) config() Config {
	l.cfgMu.RLock()
	cfg := l.cfg
	l.cfgMu.RUnlock()
	return cfg
}

func (l *Limiter) shardFor(identity string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return &l.shards[h.Sum32()%shardCount]
}

// Admit reports whether a call from identity may proceed, recording it if so.
//
// Entries older than the window are pruned lazily here; a denied call is not
// recorded, so denials never extend the penalty.
func (l *Limiter) Admit(identity string) bool {
	cfg := l.config()
	if !cfg.Enabled {
		return true
	}

	now := l.now()
	cutoff := now.Add(-cfg.Window)

	sh := l.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stamps := sh.windows[identity]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= cfg.MaxRequests {
		sh.windows[identity] = kept
		return false
	}

	sh.windows[identity] = append(kept, now)
	return true
}

// Sweep drops identities whose newest entry is older than one full window.
// It returns the number of evicted identities. The sweeper job calls this
// periodically so the per-identity map cannot grow without bound.
func (l *Limiter) Sweep() int {
	cfg := l.config()
	cutoff := l.now().Add(-cfg.Window)

	evicted := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		for id, stamps := range sh.windows {
			if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
				delete(sh.windows, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}

// Tracked returns the number of identities currently held (diagnostics).
func (l *Limiter) Tracked() int {
	n := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}
