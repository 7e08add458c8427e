// Package errors provides the HTTP error envelope and handler adapters used
// by the API server.
package errors

import (
	"encoding/json"
	goerr "errors"
	"net/http"

	scerr "github.com/scopegate/scopegate/pkg/errors"
	"github.com/scopegate/scopegate/pkg/logger"
)

// Envelope is the JSON body returned for every error response.
type Envelope struct {
	// Detail is a human-readable description of the failure.
	Detail string `json:"detail"`

	// StatusCode mirrors the HTTP status of the response.
	StatusCode int `json:"status_code"`
}

// WriteError writes the error envelope for err. The status code and detail
// come from the typed error; untyped errors become an opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	code := scerr.Code(err)
	detail := "Internal server error"

	var typed *scerr.Error
	if goerr.As(err, &typed) && code != http.StatusInternalServerError {
		detail = typed.Message
	}

	WriteEnvelope(w, code, detail)
}

// WriteEnvelope writes an error envelope with an explicit status and detail.
func WriteEnvelope(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(Envelope{Detail: detail, StatusCode: code}); err != nil {
		logger.Errorf("failed to encode error envelope: %v", err)
	}
}

// HandlerWithError is an HTTP handler that returns an error instead of
// writing its own failure responses.
type HandlerWithError func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP invokes the handler and converts a returned error into an
// envelope response.
func (h HandlerWithError) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h(w, r); err != nil {
		logger.Debugw("request failed", "path", r.URL.Path, "error", err)
		WriteError(w, err)
	}
}
