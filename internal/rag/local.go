package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// IndexFileName is the file the local index is persisted to, inside the
// index root directory.
const IndexFileName = "index.db"

// reloadDebounce coalesces the burst of fsnotify events a rename produces.
const reloadDebounce = 250 * time.Millisecond

// LocalIndex is an Index persisted to a single SQLite file. Searches run
// against an immutable in-memory snapshot so readers never take a lock;
// rebuilds write a temporary file and publish it with os.Rename.
type LocalIndex struct {
	// root is the directory holding the index file.
	root string
	// path is root/IndexFileName.
	path string
	// snap is the snapshot served to readers.
	snap atomic.Pointer[snapshot]
	// mu serialises writers.
	mu sync.Mutex
}

// snapshot is the read-only view of one published index file.
type snapshot struct {
	dim   int
	docs  []Document
	vecs  [][]float32
	norms []float64
}

// OpenLocalIndex opens the index rooted at dir, creating the directory if
// needed. A missing index file yields an empty index.
func OpenLocalIndex(ctx context.Context, dir string) (*LocalIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rag: create index dir %s: %w", dir, err)
	}
	l := &LocalIndex{root: dir, path: filepath.Join(dir, IndexFileName)}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the location of the index file.
func (l *LocalIndex) Path() string { return l.path }

// Len returns the number of chunks in the current snapshot.
func (l *LocalIndex) Len() int { return len(l.snap.Load().docs) }

// Dimensions returns the embedding dimension recorded in the current
// snapshot, or 0 when the index is empty.
func (l *LocalIndex) Dimensions() int { return l.snap.Load().dim }

// Reload re-reads the index file and swaps in the new snapshot.
func (l *LocalIndex) Reload(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reloadLocked(ctx)
}

func (l *LocalIndex) reloadLocked(ctx context.Context) error {
	s, err := loadSnapshot(ctx, l.path)
	if err != nil {
		return err
	}
	l.snap.Store(s)
	return nil
}

// Search ranks every chunk by cosine similarity to queryEmbedding and returns
// the best topK. Scores are clamped to [0, 1].
func (l *LocalIndex) Search(_ context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	s := l.snap.Load()
	if len(s.docs) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(queryEmbedding) != s.dim {
		return nil, fmt.Errorf("%w: index has %d, query has %d", ErrDimensionMismatch, s.dim, len(queryEmbedding))
	}

	qn := norm(queryEmbedding)
	type scored struct {
		i     int
		score float32
	}
	ranked := make([]scored, len(s.docs))
	for i, v := range s.vecs {
		ranked[i] = scored{i: i, score: cosine(queryEmbedding, qn, v, s.norms[i])}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	if topK > len(ranked) {
		topK = len(ranked)
	}
	out := make([]Document, topK)
	for n, r := range ranked[:topK] {
		out[n] = s.docs[r.i]
		out[n].Score = r.score
	}
	return out, nil
}

// Upsert writes docs into the live index file and reloads. Bulk loads
// should go through Rebuild instead.
func (l *LocalIndex) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	db, err := openIndexDB(ctx, l.path)
	if err != nil {
		return err
	}
	w := &sqliteWriter{db: db}
	if err := w.Upsert(ctx, docs, embeddings); err != nil {
		_ = db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("rag: close index: %w", err)
	}
	return l.reloadLocked(ctx)
}

// Rebuild builds a complete new index in a temporary file next to the live
// one, then renames it into place. Concurrent searches keep using the old
// snapshot until the rename succeeds.
func (l *LocalIndex) Rebuild(ctx context.Context, fill func(w Writer) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tmp, err := os.CreateTemp(l.root, "index-*.db.tmp")
	if err != nil {
		return fmt.Errorf("rag: create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	published := false
	defer func() {
		if !published {
			_ = os.Remove(tmpPath)
		}
	}()

	db, err := openIndexDB(ctx, tmpPath)
	if err != nil {
		return err
	}
	if err := fill(&sqliteWriter{db: db}); err != nil {
		_ = db.Close()
		return fmt.Errorf("rag: rebuild: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("rag: close temp index: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("rag: publish index: %w", err)
	}
	published = true
	return l.reloadLocked(ctx)
}

// Clear replaces the index with an empty one.
func (l *LocalIndex) Clear(ctx context.Context) error {
	return l.Rebuild(ctx, func(Writer) error { return nil })
}

// Watch reloads the snapshot whenever another process publishes a new index
// file. It blocks until ctx is cancelled.
func (l *LocalIndex) Watch(ctx context.Context, log *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rag: create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(l.root); err != nil {
		return fmt.Errorf("rag: watch %s: %w", l.root, err)
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != IndexFileName {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			if err := l.Reload(ctx); err != nil {
				log.Error("rag: index reload failed", slog.String("path", l.path), slog.String("error", err.Error()))
				continue
			}
			log.Info("rag: index reloaded", slog.String("path", l.path), slog.Int("chunks", l.Len()))

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("rag: watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close releases nothing; the index holds no open handles between writes.
func (l *LocalIndex) Close() error { return nil }

// openIndexDB opens the SQLite file at path and ensures the schema exists.
// The rollback journal keeps the database in a single file so it can be
// renamed atomically.
func openIndexDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(DELETE)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("rag: open index %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    id          TEXT    PRIMARY KEY,
    source      TEXT    NOT NULL,
    start_index INTEGER NOT NULL,
    content     TEXT    NOT NULL,
    metadata    TEXT    NOT NULL,
    embedding   BLOB    NOT NULL
);
CREATE TABLE IF NOT EXISTS index_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("rag: migrate index %s: %w", path, err)
	}
	return db, nil
}

// loadSnapshot reads the whole index file into memory.
func loadSnapshot(ctx context.Context, path string) (*snapshot, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return &snapshot{}, nil
	}

	db, err := openIndexDB(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	s := &snapshot{}
	dim, err := readDimensions(ctx, db)
	if err != nil {
		return nil, err
	}
	s.dim = dim

	rows, err := db.QueryContext(ctx, `SELECT id, source, start_index, content, metadata, embedding FROM chunks ORDER BY source, start_index`)
	if err != nil {
		return nil, fmt.Errorf("rag: load chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d    Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&d.ID, &d.Source, &d.StartIndex, &d.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("rag: scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("rag: decode metadata for %s: %w", d.ID, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("rag: decode embedding for %s: %w", d.ID, err)
		}
		if len(vec) != s.dim {
			return nil, fmt.Errorf("%w: chunk %s has %d, index has %d", ErrDimensionMismatch, d.ID, len(vec), s.dim)
		}
		s.docs = append(s.docs, d)
		s.vecs = append(s.vecs, vec)
		s.norms = append(s.norms, norm(vec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: load chunks: %w", err)
	}
	return s, nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readDimensions(ctx context.Context, q rowQuerier) (int, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimensions'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rag: read dimensions: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("rag: invalid dimensions %q: %w", v, err)
	}
	return n, nil
}

// sqliteWriter writes documents into an open index database.
type sqliteWriter struct {
	db *sql.DB
}

// Upsert inserts or replaces docs in one transaction. The first write fixes
// the index dimension; later writes must match it.
func (w *sqliteWriter) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("rag: upsert: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rag: begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	dim, err := readDimensions(ctx, tx)
	if err != nil {
		return err
	}
	if dim == 0 {
		dim = len(embeddings[0])
		if dim == 0 {
			return fmt.Errorf("rag: upsert: empty embedding")
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO index_meta (key, value) VALUES ('dimensions', ?)`, strconv.Itoa(dim)); err != nil {
			return fmt.Errorf("rag: write dimensions: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks (id, source, start_index, content, metadata, embedding) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("rag: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, d := range docs {
		if len(embeddings[i]) != dim {
			return fmt.Errorf("%w: index has %d, document %s has %d", ErrDimensionMismatch, dim, d.ID, len(embeddings[i]))
		}
		meta := d.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("rag: encode metadata for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Source, d.StartIndex, d.Content, string(metaJSON), encodeVector(embeddings[i])); err != nil {
			return fmt.Errorf("rag: insert %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rag: commit upsert: %w", err)
	}
	return nil
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

func norm(v []float32) float64 {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return math.Sqrt(s)
}

// cosine returns the cosine similarity of a and b clamped to [0, 1].
func cosine(a []float32, an float64, b []float32, bn float64) float32 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	c := dot / (an * bn)
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return float32(c)
}
