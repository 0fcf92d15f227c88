package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/54b3r/junu-go/internal/ingestion"
	"github.com/54b3r/junu-go/internal/logging"
)

// NewIngestCmd constructs the `junu ingest` command, which rebuilds the
// vector index from the data directory.
func NewIngestCmd() *cobra.Command {
	var dataDir string
	var watch bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the vector index from the data directory",
		Long: `Load every document under the data directory, split it into overlapping
chunks, embed the chunks and publish them as the new vector index.

The previous index keeps serving until the new one is complete; a failed
run leaves it untouched. With --watch the command keeps running and
rebuilds whenever a document changes.

Environment:
  INGEST_DATA_DIR        document root (default: Data)
  INGEST_CHUNK_SIZE      characters per chunk (default: 1200)
  INGEST_CHUNK_OVERLAP   characters shared by neighbours (default: 300)
  INDEX_BACKEND          local or qdrant (default: local)
  INDEX_PATH             local index directory (default: chroma)
  EMBEDDING_PROVIDER     tei, ollama, openai or azure (default: tei)

Examples:
  junu ingest
  junu ingest --data-dir ./Data --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			emb, _, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			idx, err := openIndex(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer idx.Close()

			cfg := ingestion.ConfigFromEnv()
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			pipeline, err := ingestion.NewPipeline(emb, idx, cfg, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			var out io.Writer = cmd.ErrOrStderr()
			if quiet {
				out = io.Discard
			}
			if err := runIngest(ctx, pipeline, out, log); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			log.Info("watching for document changes", slog.String("dir", cfg.DataDir))
			return ingestion.Watch(ctx, cfg.DataDir, cfg.Extensions, ingestion.DefaultDebounce, log, func(ctx context.Context) {
				if err := runIngest(ctx, pipeline, out, log); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("ingest failed", slog.Any("error", err))
				}
			})
		},
	}

	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Document root (overrides INGEST_DATA_DIR)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and rebuild when documents change")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")

	return cmd
}

// runIngest runs one rebuild with a progress bar on out.
func runIngest(ctx context.Context, p *ingestion.Pipeline, out io.Writer, log *slog.Logger) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("loading"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	stage := ""
	stats, err := p.Run(ctx, func(s string, done, total int) {
		if s != stage {
			stage = s
			bar.Reset()
			bar.ChangeMax(total)
			bar.Describe(s)
		}
		_ = bar.Set(done)
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	log.Info("ingestion complete",
		slog.Int("documents", stats.Documents),
		slog.Int("chunks", stats.Chunks),
		slog.Duration("duration", stats.Duration),
	)
	fmt.Fprintf(out, "Indexed %d chunks from %d documents in %s\n", stats.Chunks, stats.Documents, stats.Duration.Round(time.Millisecond))
	return nil
}
