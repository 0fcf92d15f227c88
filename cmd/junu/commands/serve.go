package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/54b3r/junu-go/internal/audio"
	"github.com/54b3r/junu-go/internal/chat"
	"github.com/54b3r/junu-go/internal/config"
	"github.com/54b3r/junu-go/internal/ingestion"
	"github.com/54b3r/junu-go/internal/logging"
	"github.com/54b3r/junu-go/internal/rag"
	"github.com/54b3r/junu-go/internal/server"
	"github.com/54b3r/junu-go/internal/speech"
	"github.com/54b3r/junu-go/internal/store"
	"github.com/54b3r/junu-go/internal/tracing"
)

// pinger is implemented by every client with a cheap reachability check.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewServeCmd constructs the `junu serve` command, which starts the HTTP
// server and serves the web UI.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var ingestFirst bool
	var watchData bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Junu HTTP server and web UI",
		Long: `Start the HTTP server.

Routes:
  POST   /chat            text question -> answer and history
  POST   /stt             WAV -> transcript
  POST   /tts             text -> WAV
  POST   /voice           WAV question -> answer text and audio
  POST   /ingest          rebuild the index in the background
  DELETE /sessions/{id}   forget a server-side conversation
  GET    /api/health      liveness
  GET    /api/ready       dependency readiness
  GET    /metrics         Prometheus metrics

The built frontend in JUNU_STATIC_DIR (default: dist) is served at /.
A local index is reloaded automatically when 'junu ingest' publishes a new
one; --watch-data also rebuilds it whenever a document changes.

Examples:
  junu serve
  junu serve --port 9000 --ingest
  SPEECH_PROVIDER=openai junu serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			if !cmd.Flags().Changed("host") {
				host = config.String("JUNU_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = config.Int("JUNU_PORT", port)
			}

			flush, ok := tracing.Setup()
			defer flush()
			log.Info("langfuse tracing", slog.Bool("enabled", ok))

			history, err := store.OpenFromEnv()
			if err != nil {
				return fmt.Errorf("serve: history: %w", err)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics := server.NewMetrics(reg)

			st, err := buildStack(ctx, log, history, chat.WithObserver(metrics))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.Close()

			pipeline, err := ingestion.NewPipeline(st.embedder, st.index, ingestion.ConfigFromEnv(), log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if ingestFirst {
				if _, err := pipeline.Run(ctx, nil); err != nil {
					return fmt.Errorf("serve: initial ingest: %w", err)
				}
			}

			deps := server.Deps{Chat: st.service, Ingester: pipeline}
			pingers := []server.Pinger{server.NewModelPinger(st.provider)}
			addPinger := func(name string, v any) {
				if p, ok := v.(pinger); ok {
					pingers = append(pingers, server.NewPinger(name, p.Ping))
				}
			}
			addPinger("index", st.index)
			addPinger("embedder", st.embedder)
			addPinger("history", history)

			speechCfg := speech.ConfigFromEnv()
			if sc, err := speech.New(speechCfg); err != nil {
				log.Warn("speech disabled", slog.Any("error", err))
			} else {
				deps.Recognizer, deps.Synthesizer = sc, sc
				addPinger("speech", sc)
			}

			clips, err := audio.New(ctx, audio.ConfigFromEnv())
			if err != nil {
				return fmt.Errorf("serve: audio store: %w", err)
			}
			deps.Audio = clips
			if local, ok := clips.(*audio.Local); ok {
				deps.AudioFiles = local.Handler()
			}
			addPinger("audio", clips)

			if local, ok := st.index.(*rag.LocalIndex); ok {
				go func() {
					if err := local.Watch(ctx, log); err != nil {
						log.Warn("index hot reload disabled", slog.Any("error", err))
					}
				}()
			}
			if watchData {
				cfg := pipeline.Config()
				go func() {
					err := ingestion.Watch(ctx, cfg.DataDir, cfg.Extensions, ingestion.DefaultDebounce, log, func(ctx context.Context) {
						if _, err := pipeline.Run(ctx, nil); err != nil && !errors.Is(err, ingestion.ErrIngestInProgress) {
							log.Error("auto ingest failed", slog.Any("error", err))
						}
					})
					if err != nil {
						log.Warn("data watch disabled", slog.Any("error", err))
					}
				}()
			}

			srv, err := server.New(deps, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         pingers,
				APIKey:          config.String("JUNU_API_KEY", ""),
				StaticDir:       config.String("JUNU_STATIC_DIR", "dist"),
				CORSOrigins:     config.List("JUNU_CORS_ORIGINS", nil),
				RateLimit:       float64(config.Float32("JUNU_RATE_LIMIT", 0)),
				RateBurst:       config.Int("JUNU_RATE_BURST", 0),
				TrustProxy:      config.Bool("JUNU_TRUST_PROXY", false),
				Language:        speechCfg.Language,
				Voice:           speechCfg.Voice,
				Metrics:         metrics,
				MetricsRegistry: reg,
				MetricsGatherer: reg,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: JUNU_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (env: JUNU_PORT)")
	cmd.Flags().BoolVar(&ingestFirst, "ingest", false, "Rebuild the index before serving")
	cmd.Flags().BoolVar(&watchData, "watch-data", false, "Rebuild the index when documents change")

	return cmd
}
