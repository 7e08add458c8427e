// Package v1 provides the demo resource routes served by the gateway. The
// routes themselves hold no authorization logic; scope enforcement happens
// in the authentication middleware before a request reaches them.
package v1

import (
	"encoding/json"
	"net/http"

	"github.com/scopegate/scopegate/pkg/auth"
	"github.com/scopegate/scopegate/pkg/logger"
)

// messageResponse is the body of every demo route.
type messageResponse struct {
	Message string         `json:"message"`
	Subject string         `json:"subject,omitempty"`
	Claims  map[string]any `json:"claims,omitempty"`
}

func getPublic(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, messageResponse{
		Message: "Hello from a public endpoint! You don't need to be authenticated to see this.",
	})
}

func getPrivate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		// The middleware guarantees claims on this route; reaching this
		// branch means the route table and the router disagree.
		logger.Errorf("no claims in context for %s", r.URL.Path)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, messageResponse{
		Message: "Hello from a private endpoint! You need to be authenticated to see this.",
		Subject: claims.Subject,
		Claims:  claims.Map(),
	})
}

func scopedMessage(capability string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			logger.Errorf("no claims in context for %s", r.URL.Path)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, messageResponse{
			Message: "Hello from a private endpoint! You are authorized to " + capability + ".",
			Subject: claims.Subject,
		})
	}
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}
