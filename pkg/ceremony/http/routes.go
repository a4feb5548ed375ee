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

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts the ceremony routes on a chi router.
//
// Example:
//
//	handler := ceremonyhttp.NewHandler(svc)
//	r.Route("/api/webauthn", func(r chi.Router) {
//	    ceremonyhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/registration/begin", h.BeginRegistration)
	r.Post("/registration/finish", h.FinishRegistration)
	r.Get("/registration/status", h.RegistrationStatus)
	r.Post("/authentication/begin", h.BeginAuthentication)
	r.Post("/authentication/finish", h.FinishAuthentication)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns the ceremony routes for manual mounting on routers not
// directly supported.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: http.MethodPost, Path: "/registration/begin", Handler: h.BeginRegistration},
		{Method: http.MethodPost, Path: "/registration/finish", Handler: h.FinishRegistration},
		{Method: http.MethodGet, Path: "/registration/status", Handler: h.RegistrationStatus},
		{Method: http.MethodPost, Path: "/authentication/begin", Handler: h.BeginAuthentication},
		{Method: http.MethodPost, Path: "/authentication/finish", Handler: h.FinishAuthentication},
	}
}
