// Package httpx writes JSON bodies and the shared error payload.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ErrorBody struct {
	Code     string  `json:"code"`
	Message  string  `json:"message"`
	BankCode *uint64 `json:"bank_code,omitempty"`
	Details  any     `json:"details,omitempty"`
}

type ErrorResponse struct {
	RequestID string    `json:"request_id"`
	Error     ErrorBody `json:"error"`
}

// RequestID returns chi's request id, or a fresh one when the router runs
// without the RequestID middleware.
func RequestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return "req_" + uuid.NewString()
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, body ErrorBody) {
	WriteJSON(w, status, ErrorResponse{RequestID: RequestID(r), Error: body})
}
