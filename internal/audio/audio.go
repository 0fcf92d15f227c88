// Package audio stores synthesized answers from the voice pipeline and
// returns a location the client can fetch them from.
package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/junu-go/internal/config"
)

// Backend names accepted by AUDIO_STORE.
const (
	BackendDisabled = "disabled"
	BackendLocal    = "local"
	BackendMinio    = "minio"
)

// Stored describes where a saved clip can be fetched. Exactly one field is set.
type Stored struct {
	// URL is a path on this server or a presigned object URL.
	URL string
	// Base64 holds the clip inline when no store is configured.
	Base64 string
}

// Store saves WAV clips.
type Store interface {
	Save(ctx context.Context, wav []byte) (Stored, error)
}

// Config selects and configures the audio store.
type Config struct {
	Backend string

	// Dir is the local backend's directory.
	Dir string

	Minio MinioConfig
}

// ConfigFromEnv reads AUDIO_STORE, AUDIO_DIR and the MINIO_* variables.
func ConfigFromEnv() Config {
	return Config{
		Backend: config.String("AUDIO_STORE", BackendDisabled),
		Dir:     config.String("AUDIO_DIR", "audio"),
		Minio: MinioConfig{
			Endpoint:  config.String("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: config.String("MINIO_ACCESS_KEY", ""),
			SecretKey: config.String("MINIO_SECRET_KEY", ""),
			Bucket:    config.String("MINIO_BUCKET", "junu-audio"),
			Region:    config.String("MINIO_REGION", "us-east-1"),
			UseSSL:    config.Bool("MINIO_USE_SSL", false),
			URLExpiry: config.Duration("AUDIO_URL_TTL", time.Hour),
		},
	}
}

// New constructs the configured store. The minio backend checks the bucket
// and creates it when missing.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendDisabled:
		return Inline{}, nil
	case BackendLocal:
		return NewLocal(cfg.Dir)
	case BackendMinio:
		m, err := NewMinio(cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("audio: unknown store %q (valid: disabled, local, minio)", cfg.Backend)
}

// objectName returns a unique, date-prefixed name for a clip.
func objectName(now time.Time) string {
	return now.UTC().Format("2006/01/02/") + uuid.NewString() + ".wav"
}
