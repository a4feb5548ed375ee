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

package rest

import (
	"net/http"
	"time"
)

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	Identities        int    `json:"identities"`
	Credentials       int    `json:"credentials"`
	PendingChallenges int    `json:"pending_challenges"`
	LockedIdentities  int    `json:"locked_identities"`
}

// HealthProbeResponse is the body for the liveness and readiness probes.
type HealthProbeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthHandler handles GET /health requests with a snapshot of the
// server's in-memory state.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:            "healthy",
		Version:           s.version,
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		Identities:        s.store.IdentityCount(),
		Credentials:       s.store.CredentialCount(),
		PendingChallenges: s.challenges.Pending(),
		LockedIdentities:  s.tracker.Stats().LockedIdentities,
	})
}

// LivenessHandler handles GET /health/live requests. The server holds
// all state in memory, so a served request is proof of life.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthProbeResponse{
		Status:  "healthy",
		Message: "Service is alive",
	})
}

// ReadinessHandler handles GET /health/ready requests.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthProbeResponse{
		Status:  "healthy",
		Message: "Service is ready",
	})
}
