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

package lockout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Defaults(t *testing.T) {
	tracker := NewTracker(Config{}, nil)
	defer tracker.Stop()

	assert.Equal(t, DefaultThreshold, tracker.Threshold())
}

func TestTracker_LocksAtThreshold(t *testing.T) {
	tracker := NewTracker(Config{Threshold: 3, Window: 30 * time.Minute}, nil)
	defer tracker.Stop()

	assert.False(t, tracker.IsLocked("alice"))

	assert.Equal(t, 1, tracker.RecordFailure("alice"))
	assert.False(t, tracker.IsLocked("alice"))

	assert.Equal(t, 2, tracker.RecordFailure("alice"))
	assert.False(t, tracker.IsLocked("alice"))

	assert.Equal(t, 3, tracker.RecordFailure("alice"))
	assert.True(t, tracker.IsLocked("alice"))

	// Another failure keeps it locked.
	assert.Equal(t, 4, tracker.RecordFailure("alice"))
	assert.True(t, tracker.IsLocked("alice"))
}

func TestTracker_IdentitiesAreIndependent(t *testing.T) {
	tracker := NewTracker(Config{Threshold: 3, Window: 30 * time.Minute}, nil)
	defer tracker.Stop()

	for i := 0; i < 3; i++ {
		tracker.RecordFailure("alice")
	}
	tracker.RecordFailure("bob")

	assert.True(t, tracker.IsLocked("alice"))
	assert.False(t, tracker.IsLocked("bob"))
}

func TestTracker_ResetClearsFailures(t *testing.T) {
	tracker := NewTracker(Config{Threshold: 3, Window: 30 * time.Minute}, nil)
	defer tracker.Stop()

	for i := 0; i < 3; i++ {
		tracker.RecordFailure("alice")
	}
	assert.True(t, tracker.IsLocked("alice"))

	tracker.Reset("alice")
	assert.False(t, tracker.IsLocked("alice"))
	assert.Equal(t, 1, tracker.RecordFailure("alice"))
}

func TestTracker_FailuresDecay(t *testing.T) {
	tracker := NewTracker(Config{Threshold: 3, Window: 30 * time.Minute}, nil)
	defer tracker.Stop()

	now := time.Now()
	tracker.now = func() time.Time { return now }

	tracker.RecordFailure("alice")
	tracker.RecordFailure("alice")

	// A failure after the window restarts the count at one.
	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, tracker.RecordFailure("alice"))
	assert.False(t, tracker.IsLocked("alice"))
}

func TestTracker_LockExpiresWithWindow(t *testing.T) {
	tracker := NewTracker(Config{Threshold: 3, Window: 30 * time.Minute}, nil)
	defer tracker.Stop()

	now := time.Now()
	tracker.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		tracker.RecordFailure("alice")
	}
	assert.True(t, tracker.IsLocked("alice"))

	now = now.Add(29 * time.Minute)
	assert.True(t, tracker.IsLocked("alice"))

	now = now.Add(2 * time.Minute)
	assert.False(t, tracker.IsLocked("alice"))
}

func TestTracker_Stats(t *testing.T) {
	tracker := NewTracker(Config{Threshold: 2, Window: 30 * time.Minute}, nil)
	defer tracker.Stop()

	tracker.RecordFailure("alice")
	tracker.RecordFailure("alice")
	tracker.RecordFailure("bob")

	stats := tracker.Stats()
	assert.Equal(t, 2, stats.TrackedIdentities)
	assert.Equal(t, 1, stats.LockedIdentities)
}

func TestTracker_SweepDropsStaleEntries(t *testing.T) {
	tracker := NewTracker(Config{Threshold: 3, Window: 30 * time.Minute}, nil)
	defer tracker.Stop()

	now := time.Now()
	tracker.now = func() time.Time { return now }

	tracker.RecordFailure("alice")
	tracker.RecordFailure("bob")

	now = now.Add(time.Hour)
	tracker.sweep()

	stats := tracker.Stats()
	assert.Equal(t, 0, stats.TrackedIdentities)
}
