package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/54b3r/junu-go/internal/logging"
)

func TestWatch_TriggersOnRecognisedChange(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, root, nil, 20*time.Millisecond, logging.Discard(), func(context.Context) {
			fired <- struct{}{}
		})
	}()

	// Ignored extensions never fire; keep touching a markdown file until
	// the watcher is up and reports it.
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case <-fired:
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch returned %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(filepath.Join(root, "doc.md"), []byte{byte('a' + i%26)}, 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("onChange was not called")
		}
	}
}

func TestWatch_MissingRoot(t *testing.T) {
	t.Parallel()

	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent"), nil, 0, logging.Discard(), func(context.Context) {})
	if err == nil {
		t.Error("expected error for missing root")
	}
}
