// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-bioauth.
//
// go-bioauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package lockout tracks failed authentication attempts per identity and
// locks an identity once its failures reach a threshold. Failure counts
// decay: an attempt arriving after the decay window restarts the count
// instead of extending it.
package lockout

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultThreshold is the failure count at which an identity locks.
	DefaultThreshold = 3

	// DefaultWindow is how long failures count and how long a lock holds.
	DefaultWindow = 30 * time.Minute
)

// Config configures a Tracker.
type Config struct {
	// Threshold is the number of failures that locks an identity.
	Threshold int `yaml:"threshold" json:"threshold" mapstructure:"threshold"`

	// Window bounds both failure accumulation and lock duration. A
	// failure older than the window no longer counts, so a lock expires
	// on its own once the window passes.
	Window time.Duration `yaml:"window" json:"window" mapstructure:"window"`

	// SweepInterval is how often stale entries are reaped. Zero disables
	// the sweep worker.
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval" mapstructure:"sweep_interval"`
}

type entry struct {
	count       int
	lastAttempt time.Time
}

// Stats is a point-in-time view of the tracker.
type Stats struct {
	TrackedIdentities int
	LockedIdentities  int
}

// Tracker is an in-memory lockout policy. All methods are safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry

	threshold int
	window    time.Duration
	logger    *slog.Logger

	// now is replaceable in tests.
	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTracker creates a lockout tracker and, when configured with a sweep
// interval, starts its sweep worker. Call Stop to release the worker.
func NewTracker(config Config, logger *slog.Logger) *Tracker {
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		entries:   make(map[string]*entry),
		threshold: config.Threshold,
		window:    config.Window,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	if config.SweepInterval > 0 {
		go t.sweepWorker(config.SweepInterval)
	}
	return t
}

// RecordFailure charges a failed attempt to the identity and returns the
// count now standing against it. A prior count older than the window has
// decayed, so the new count starts over at one.
func (t *Tracker) RecordFailure(identityKey string) int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[identityKey]
	if !ok || now.Sub(e.lastAttempt) > t.window {
		e = &entry{}
		t.entries[identityKey] = e
	}
	e.count++
	e.lastAttempt = now

	if e.count == t.threshold {
		t.logger.Warn("lockout threshold reached",
			"identity", identityKey,
			"failures", e.count)
	}
	return e.count
}

// Reset clears the identity's failure count.
func (t *Tracker) Reset(identityKey string) {
	t.mu.Lock()
	delete(t.entries, identityKey)
	t.mu.Unlock()
}

// IsLocked reports whether the identity is currently locked. A lock expires
// once the last failure falls outside the window.
func (t *Tracker) IsLocked(identityKey string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[identityKey]
	if !ok {
		return false
	}
	if now.Sub(e.lastAttempt) > t.window {
		return false
	}
	return e.count >= t.threshold
}

// Threshold returns the failure count at which an identity locks.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// Stats returns the number of tracked and currently locked identities.
func (t *Tracker) Stats() Stats {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{TrackedIdentities: len(t.entries)}
	for _, e := range t.entries {
		if e.count >= t.threshold && now.Sub(e.lastAttempt) <= t.window {
			stats.LockedIdentities++
		}
	}
	return stats
}

// Stop terminates the sweep worker. Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}

func (t *Tracker) sweepWorker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.stopCh:
			return
		}
	}
}

// sweep drops entries whose last failure has aged out of the window.
func (t *Tracker) sweep() {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for key, e := range t.entries {
		if now.Sub(e.lastAttempt) > t.window {
			delete(t.entries, key)
		}
	}
}
