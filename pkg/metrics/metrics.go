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

// Package metrics provides Prometheus instrumentation for ceremony
// operations: ceremony outcomes, lockout activity, pending challenges, and
// the HTTP surface.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all bioauth metrics.
	Namespace = "bioauth"

	// Label names
	LabelCeremony   = "ceremony"
	LabelOutcome    = "outcome"
	LabelEvent      = "event"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Ceremony values
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Outcome values
	OutcomeVerified = "verified"
	OutcomeRejected = "rejected"
	OutcomeLocked   = "locked"

	// Lockout event values
	EventFailure = "failure"
	EventLocked  = "locked"
	EventReset   = "reset"
)

var (
	// CeremoniesTotal tracks completed ceremonies by kind and outcome.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of completed ceremonies by kind and outcome",
		},
		[]string{LabelCeremony, LabelOutcome},
	)

	// CeremonyDuration tracks begin-to-finish ceremony handling time in
	// seconds, measured server-side per finish request.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Server-side duration of ceremony completion in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelCeremony},
	)

	// ChallengesIssued tracks challenges minted by ceremony kind.
	ChallengesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "challenges_issued_total",
			Help:      "Total number of challenges issued by ceremony kind",
		},
		[]string{LabelCeremony},
	)

	// PendingChallenges tracks the number of outstanding challenges.
	PendingChallenges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_challenges",
			Help:      "Number of outstanding unconsumed challenges",
		},
	)

	// LockoutEventsTotal tracks lockout policy activity.
	LockoutEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lockout_events_total",
			Help:      "Total number of lockout events (failure, locked, reset)",
		},
		[]string{LabelEvent},
	)

	// LockedIdentities tracks the number of currently locked identities.
	LockedIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "locked_identities",
			Help:      "Number of identities currently locked out",
		},
	)

	// HTTPRequestsTotal tracks HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request durations in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordCeremony records a completed ceremony with its outcome and
// server-side duration in seconds.
func RecordCeremony(ceremony, outcome string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, outcome).Inc()
	CeremonyDuration.WithLabelValues(ceremony).Observe(duration)
}

// RecordChallengeIssued records a minted challenge.
func RecordChallengeIssued(ceremony string) {
	if !enabled.Load() {
		return
	}
	ChallengesIssued.WithLabelValues(ceremony).Inc()
}

// SetPendingChallenges sets the outstanding challenge count.
func SetPendingChallenges(count float64) {
	if !enabled.Load() {
		return
	}
	PendingChallenges.Set(count)
}

// RecordLockoutEvent records lockout policy activity (use Event* constants).
func RecordLockoutEvent(event string) {
	if !enabled.Load() {
		return
	}
	LockoutEventsTotal.WithLabelValues(event).Inc()
}

// SetLockedIdentities sets the currently-locked identity count.
func SetLockedIdentities(count float64) {
	if !enabled.Load() {
		return
	}
	LockedIdentities.Set(count)
}

// SetServerUptime sets the uptime gauge in seconds.
func SetServerUptime(seconds float64) {
	if !enabled.Load() {
		return
	}
	ServerUptime.Set(seconds)
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection. Useful for testing.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
