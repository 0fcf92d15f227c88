package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/junu-go/internal/audio"
	"github.com/54b3r/junu-go/internal/chat"
	"github.com/54b3r/junu-go/internal/ingestion"
	"github.com/54b3r/junu-go/internal/speech"
	"github.com/54b3r/junu-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover STT, generation and TTS for a /voice request.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the model
	// and speech routes (requests/second). Defaults to 2 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 10 if zero.
	RateBurst int
	// TrustProxy attributes requests to the first X-Forwarded-For address.
	TrustProxy bool
	// APIKey is the Bearer token required on the API routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// StaticDir holds the built frontend. Missing directories are skipped.
	StaticDir string
	// CORSOrigins lists the allowed browser origins.
	CORSOrigins []string
	// MaxAudioBytes caps uploaded audio. Defaults to 25 MiB.
	MaxAudioBytes int64
	// Language is the speech language (default ne-NP).
	Language string
	// Voice is the default synthesis voice.
	Voice string
	// Metrics are the collectors the handlers report into. When nil they are
	// registered against MetricsRegistry.
	Metrics *Metrics
	// MetricsRegistry receives the server's collectors. Defaults to a fresh
	// registry per server.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to MetricsRegistry when
	// that is a *prometheus.Registry.
	MetricsGatherer prometheus.Gatherer
}

// Answerer produces answers and owns session history. *chat.Service
// satisfies it.
type Answerer interface {
	Answer(ctx context.Context, req chat.Request) (chat.Result, error)
	Clear(ctx context.Context, session string) error
}

// Ingester rebuilds the index. *ingestion.Pipeline satisfies it. Claim fails
// with ingestion.ErrIngestInProgress while any run of the same pipeline,
// including one started by the file watcher, is in flight.
type Ingester interface {
	Claim() (func(context.Context, ingestion.ProgressFunc) (ingestion.Stats, error), error)
}

// Deps are the components the handlers call. Only Chat is required; routes
// whose dependency is nil answer 503.
type Deps struct {
	Chat        Answerer
	Ingester    Ingester
	Recognizer  speech.Recognizer
	Synthesizer speech.Synthesizer
	Audio       audio.Store
	// AudioFiles serves clips saved by a local audio store under /audio/.
	AudioFiles http.Handler
}

// Server is the HTTP server that fronts the answer generator and the
// speech pipeline.
type Server struct {
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *Metrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()

	// baseCtx outlives requests; background ingestion runs under it.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	ingestMu   sync.Mutex
	lastIngest ingestStatus
	bg         sync.WaitGroup
}

// turnJSON is one history entry on the wire.
type turnJSON struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the JSON body for POST /chat.
type chatRequest struct {
	Mode      string     `json:"mode"`
	UserInput string     `json:"user_input"`
	History   []turnJSON `json:"history,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
}

// chatResponse is the JSON body returned by POST /chat.
type chatResponse struct {
	Answer    string     `json:"answer"`
	History   []turnJSON `json:"history"`
	SessionID string     `json:"session_id,omitempty"`
}

// sttResponse is the JSON body returned by POST /stt.
type sttResponse struct {
	Text    string `json:"text"`
	Message string `json:"message"`
}

// ttsRequest is the JSON body for POST /tts.
type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// voiceResponse is the JSON body returned by POST /voice.
type voiceResponse struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	SessionID   string `json:"session_id,omitempty"`
	AudioURL    string `json:"audio_url,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioError  string `json:"audio_error,omitempty"`
}

// ingestStatus is the JSON body returned by GET /ingest.
type ingestStatus struct {
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Documents  int       `json:"documents"`
	Chunks     int       `json:"chunks"`
	Error      string    `json:"error,omitempty"`
}

// errorResponse is the JSON body for every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

func toTurns(in []turnJSON) ([]store.Turn, error) {
	out := make([]store.Turn, 0, len(in))
	for i, t := range in {
		role := store.Role(t.Role)
		if !role.Valid() {
			return nil, &badRequestError{msg: "history[" + strconv.Itoa(i) + "].role must be user or assistant"}
		}
		out = append(out, store.Turn{Role: role, Content: t.Content})
	}
	return out, nil
}

func fromTurns(in []store.Turn) []turnJSON {
	out := make([]turnJSON, len(in))
	for i, t := range in {
		out[i] = turnJSON{Role: string(t.Role), Content: t.Content}
	}
	return out
}
