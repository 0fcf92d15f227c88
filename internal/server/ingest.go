package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/junu-go/internal/ingestion"
	"github.com/54b3r/junu-go/internal/logging"
)

// handleIngest handles POST /ingest. The rebuild runs in the background
// under the server's lifetime context; only one runs at a time.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingester == nil {
		writeStatus(w, r, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}
	run, err := s.deps.Ingester.Claim()
	if errors.Is(err, ingestion.ErrIngestInProgress) {
		writeStatus(w, r, http.StatusConflict, "ingestion already in progress")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	started := time.Now()
	s.ingestMu.Lock()
	s.lastIngest = ingestStatus{Running: true, StartedAt: started}
	s.ingestMu.Unlock()

	log := logging.FromContext(r.Context())
	ctx := logging.WithLogger(s.baseCtx, log)

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()

		stats, err := run(ctx, nil)
		s.metrics.observeIngest(stats.Chunks, err)

		st := ingestStatus{
			StartedAt:  started,
			FinishedAt: time.Now(),
			Documents:  stats.Documents,
			Chunks:     stats.Chunks,
		}
		if err != nil {
			st.Error = err.Error()
			log.Error("ingest failed", slog.Any("error", err))
		} else {
			log.Info("ingest complete",
				slog.Int("documents", stats.Documents),
				slog.Int("chunks", stats.Chunks),
				slog.Duration("duration", stats.Duration),
			)
		}
		s.ingestMu.Lock()
		s.lastIngest = st
		s.ingestMu.Unlock()
	}()

	writeJSON(w, r, http.StatusAccepted, ingestStatus{Running: true, StartedAt: started})
}

// handleIngestStatus handles GET /ingest.
func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	s.ingestMu.Lock()
	st := s.lastIngest
	s.ingestMu.Unlock()
	writeJSON(w, r, http.StatusOK, st)
}
