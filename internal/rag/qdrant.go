package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Reserved payload keys. Every other payload key is chunk metadata.
const (
	payloadChunkID    = "chunk_id"
	payloadContent    = "content"
	payloadSource     = "source"
	payloadStartIndex = "start_index"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the alias that queries are served from. Each rebuild
	// creates a physical collection named "<Collection>-<unixnano>" and
	// repoints the alias at it.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Index on a Qdrant cluster. Rebuilds are published
// by swapping a collection alias so queries never observe a partial index.
type QdrantStore struct {
	client *qdrant.Client
	cfg    QdrantConfig
	log    *slog.Logger

	// mu serialises writers.
	mu sync.Mutex
}

// NewQdrantStore connects to Qdrant. Collections are created lazily on the
// first write so the vector size always matches the embedder in use.
func NewQdrantStore(cfg QdrantConfig, log *slog.Logger) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "junu"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantStore{client: client, cfg: cfg, log: log}, nil
}

// Ping checks that the Qdrant server is reachable.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// target returns the physical collection the alias currently points at, or
// "" when the alias does not exist.
func (s *QdrantStore) target(ctx context.Context) (string, error) {
	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("qdrant: list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == s.cfg.Collection {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

// Search queries the aliased collection. A missing alias means nothing has
// been ingested yet and yields no results.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	if topK <= 0 {
		return nil, nil
	}
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if coll, terr := s.target(ctx); terr == nil && coll == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, documentFromPayload(r.GetId().GetUuid(), r.GetPayload(), clampScore(r.GetScore())))
	}
	return docs, nil
}

// Upsert writes into the live collection. When nothing has been published
// yet it publishes a new collection holding just docs.
func (s *QdrantStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	s.mu.Lock()
	coll, err := s.target(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if coll == "" {
		return s.Rebuild(ctx, func(w Writer) error { return w.Upsert(ctx, docs, embeddings) })
	}
	w := &qdrantWriter{store: s, collection: coll, created: true}
	return w.Upsert(ctx, docs, embeddings)
}

// Rebuild fills a fresh collection and atomically repoints the alias at it,
// then drops the previous collection. An empty fill removes the alias.
func (s *QdrantStore) Rebuild(ctx context.Context, fill func(w Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &qdrantWriter{
		store:      s,
		collection: fmt.Sprintf("%s-%d", s.cfg.Collection, time.Now().UnixNano()),
	}
	if err := fill(w); err != nil {
		if w.created {
			if derr := s.client.DeleteCollection(ctx, w.collection); derr != nil {
				s.log.Warn("qdrant: failed to drop abandoned collection",
					slog.String("collection", w.collection),
					slog.String("error", derr.Error()),
				)
			}
		}
		return fmt.Errorf("qdrant: rebuild: %w", err)
	}

	old, err := s.target(ctx)
	if err != nil {
		return err
	}

	var ops []*qdrant.AliasOperations
	if old != "" {
		ops = append(ops, qdrant.NewAliasDelete(s.cfg.Collection))
	}
	if w.created {
		ops = append(ops, qdrant.NewAliasCreate(s.cfg.Collection, w.collection))
	}
	if len(ops) > 0 {
		if err := s.client.UpdateAliases(ctx, ops); err != nil {
			return fmt.Errorf("qdrant: swap alias %q: %w", s.cfg.Collection, err)
		}
	}

	if old != "" {
		if err := s.client.DeleteCollection(ctx, old); err != nil {
			s.log.Warn("qdrant: failed to drop previous collection",
				slog.String("collection", old),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Clear removes the alias and its collection.
func (s *QdrantStore) Clear(ctx context.Context) error {
	return s.Rebuild(ctx, func(Writer) error { return nil })
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// qdrantWriter writes into one physical collection, creating it on the
// first non-empty batch.
type qdrantWriter struct {
	store      *QdrantStore
	collection string
	created    bool
	dim        int
}

func (w *qdrantWriter) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("qdrant: upsert: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	if !w.created {
		w.dim = len(embeddings[0])
		err := w.store.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: w.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(w.dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %w", w.collection, err)
		}
		w.created = true
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		if w.dim != 0 && len(embeddings[i]) != w.dim {
			return fmt.Errorf("%w: collection has %d, document %s has %d", ErrDimensionMismatch, w.dim, doc.ID, len(embeddings[i]))
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(doc.ID)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payloadFromDocument(doc)),
		})
	}

	wait := true
	_, err := w.store.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: w.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// pointID returns id when it is already a UUID, or a deterministic UUID
// derived from it otherwise. Qdrant only accepts UUID or integer IDs.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func payloadFromDocument(doc Document) map[string]any {
	payload := map[string]any{
		payloadChunkID:    doc.ID,
		payloadContent:    doc.Content,
		payloadSource:     doc.Source,
		payloadStartIndex: int64(doc.StartIndex),
	}
	for k, v := range doc.Metadata {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}
	return payload
}

func documentFromPayload(pointUUID string, p map[string]*qdrant.Value, score float32) Document {
	doc := Document{ID: pointUUID, Score: score, Metadata: make(map[string]string)}
	for k, v := range p {
		switch k {
		case payloadChunkID:
			if id := v.GetStringValue(); id != "" {
				doc.ID = id
			}
		case payloadContent:
			doc.Content = v.GetStringValue()
		case payloadSource:
			doc.Source = v.GetStringValue()
		case payloadStartIndex:
			doc.StartIndex = int(v.GetIntegerValue())
		default:
			doc.Metadata[k] = v.GetStringValue()
		}
	}
	return doc
}

// clampScore maps Qdrant's cosine score in [-1, 1] onto [0, 1] by clamping.
func clampScore(s float32) float32 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
