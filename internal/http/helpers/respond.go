// Package helpers contiene utilidades compartidas por los controllers:
// respuesta JSON y el envelope de error de autenticación.
package helpers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/edustack/campusid/internal/federation/autherr"
)

// ErrorEnvelope is the wire shape of every authentication failure.
type ErrorEnvelope struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Provider    string `json:"provider,omitempty"`
	ErrorCode   int    `json:"error_code"`
	Timestamp   string `json:"timestamp"`
	Path        string `json:"path"`
}

// WriteJSON escribe una respuesta JSON con el status dado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteAuthError clasifica la falla y escribe el envelope con el status que
// dicta la clasificación. provider pisa al de la clasificación cuando ésta
// no lo trae.
func WriteAuthError(w http.ResponseWriter, r *http.Request, provider string, err error) {
	d := autherr.Classify(err)
	if d.Provider == "" {
		d.Provider = provider
	}
	WriteJSON(w, d.HTTPStatus, ErrorEnvelope{
		Error:       d.Code,
		Description: d.Description,
		Provider:    d.Provider,
		ErrorCode:   d.HTTPStatus,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Path:        r.URL.Path,
	})
}

// WriteError escribe un error genérico (no de autenticación) con el envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, description string) {
	WriteJSON(w, status, ErrorEnvelope{
		Error:       code,
		Description: description,
		ErrorCode:   status,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Path:        r.URL.Path,
	})
}
