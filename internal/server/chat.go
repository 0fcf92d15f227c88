package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/junu-go/internal/chat"
	"github.com/54b3r/junu-go/internal/logging"
)

// handleChat handles POST /chat. The response carries the full history so
// stateless clients can send it back on the next turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	history, err := toTurns(req.History)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, log := logging.With(r.Context(), slog.String("session_id", req.SessionID))
	res, err := s.deps.Chat.Answer(ctx, chat.Request{
		Mode:      req.Mode,
		Input:     req.UserInput,
		History:   history,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Debug("chat answered", slog.Int("answer_len", len(res.Answer)))

	writeJSON(w, r, http.StatusOK, chatResponse{
		Answer:    res.Answer,
		History:   fromTurns(res.History),
		SessionID: res.SessionID,
	})
}

// handleClearSession handles DELETE /sessions/{id}.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, badRequest("session id is required"))
		return
	}
	if err := s.deps.Chat.Clear(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
