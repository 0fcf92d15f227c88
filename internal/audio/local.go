package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// URLPrefix is where the local store's clips are served.
const URLPrefix = "/audio/"

// Local writes clips to a directory that the server exposes under URLPrefix.
type Local struct {
	dir string
}

// NewLocal creates dir if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("audio: local store requires AUDIO_DIR")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audio: create %s: %w", dir, err)
	}
	return &Local{dir: dir}, nil
}

// Save writes wav under a fresh name.
func (l *Local) Save(_ context.Context, wav []byte) (Stored, error) {
	name := objectName(time.Now())
	path := filepath.Join(l.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Stored{}, fmt.Errorf("audio: save: %w", err)
	}
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return Stored{}, fmt.Errorf("audio: save: %w", err)
	}
	return Stored{URL: URLPrefix + name}, nil
}

// Handler serves saved clips. Mount it at URLPrefix.
func (l *Local) Handler() http.Handler {
	return http.StripPrefix(URLPrefix, http.FileServer(http.Dir(l.dir)))
}

// Inline returns clips base64-encoded in the response.
type Inline struct{}

func (Inline) Save(_ context.Context, wav []byte) (Stored, error) {
	return Stored{Base64: base64.StdEncoding.EncodeToString(wav)}, nil
}
