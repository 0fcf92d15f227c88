package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TEIEmbedder implements rag.Embedder against a HuggingFace Text Embeddings
// Inference server. TEI serves sentence-transformers models such as
// paraphrase-multilingual-mpnet-base-v2, which handles Nepali text.
// It is safe for concurrent use.
type TEIEmbedder struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// TEIConfig holds the settings for constructing a TEIEmbedder.
type TEIConfig struct {
	// Endpoint is the TEI base URL (e.g. "http://localhost:8080").
	Endpoint string
	// APIKey is sent as a Bearer token when set (HF Inference Endpoints).
	APIKey string
	// Timeout bounds each request. Zero means 60s.
	Timeout time.Duration
}

// NewTEIEmbedder constructs a TEIEmbedder from the given config.
func NewTEIEmbedder(cfg *TEIConfig) *TEIEmbedder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &TEIEmbedder{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type teiEmbedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// Embed converts a batch of texts into embeddings via POST /embed.
func (e *TEIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	header := http.Header{}
	if e.apiKey != "" {
		header.Set("Authorization", "Bearer "+e.apiKey)
	}

	var out [][]float32
	if err := postJSON(ctx, e.client, e.endpoint+"/embed", header, teiEmbedRequest{Inputs: texts, Truncate: true}, &out); err != nil {
		return nil, fmt.Errorf("tei embedder: %w", err)
	}
	if err := checkCount(out, len(texts)); err != nil {
		return nil, fmt.Errorf("tei embedder: %w", err)
	}
	return out, nil
}

// Ping checks the TEI /health endpoint.
func (e *TEIEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("tei embedder: create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("tei embedder: health check failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tei embedder: health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}
