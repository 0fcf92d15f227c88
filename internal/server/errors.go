package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/54b3r/junu-go/internal/chat"
	"github.com/54b3r/junu-go/internal/logging"
	"github.com/54b3r/junu-go/internal/prompt"
	"github.com/54b3r/junu-go/internal/speech"
)

// badRequestError marks request validation failures detected by handlers.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// statusFor maps an error to its HTTP status: validation errors are 400,
// an expired answer deadline is 504 and any other downstream failure is 500.
func statusFor(err error) int {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad),
		errors.Is(err, prompt.ErrInvalidMode),
		errors.Is(err, chat.ErrEmptyInput),
		errors.Is(err, speech.ErrInvalidAudio):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("encode response", slog.Any("error", err))
	}
}

// writeError reports err as {"error": "..."} with the mapped status.
// Server-side failures are logged; validation failures are not.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed",
			slog.Int("status", status),
			slog.Any("error", err),
		)
	}
	writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

// writeStatus reports msg with an explicit status.
func writeStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// decodeJSON decodes a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}
