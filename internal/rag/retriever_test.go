package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type fakeStore struct {
	docs  []Document
	err   error
	gotK  int
	calls int
}

func (f *fakeStore) Upsert(context.Context, []Document, [][]float32) error { return nil }
func (f *fakeStore) Clear(context.Context) error                           { return nil }
func (f *fakeStore) Close() error                                          { return nil }

func (f *fakeStore) Search(_ context.Context, _ []float32, topK int) ([]Document, error) {
	f.calls++
	f.gotK = topK
	if f.err != nil {
		return nil, f.err
	}
	if topK < len(f.docs) {
		return f.docs[:topK], nil
	}
	return f.docs, nil
}

func TestNewContextRetriever_Defaults(t *testing.T) {
	t.Parallel()
	r, err := NewContextRetriever(&fakeEmbedder{}, &fakeStore{}, RetrieverConfig{})
	if err != nil {
		t.Fatal(err)
	}
	cfg := r.Config()
	if cfg.TopK != 3 || cfg.Threshold != 0.3 || cfg.Separator != "\n---\n" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	if _, err := NewContextRetriever(nil, &fakeStore{}, RetrieverConfig{}); err == nil {
		t.Error("want error for nil embedder")
	}
	if _, err := NewContextRetriever(&fakeEmbedder{}, nil, RetrieverConfig{}); err == nil {
		t.Error("want error for nil store")
	}
}

func TestContextRetriever_Retrieve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		docs      []Document
		wantFound bool
		wantText  string
	}{
		{
			name:      "empty index",
			wantFound: false,
		},
		{
			name:      "top score below threshold",
			docs:      []Document{{Content: "a", Score: 0.29}, {Content: "b", Score: 0.1}},
			wantFound: false,
		},
		{
			name:      "top score at threshold",
			docs:      []Document{{Content: "a", Score: 0.3}},
			wantFound: true,
			wantText:  "a",
		},
		{
			name: "joins all k in order without dedup",
			docs: []Document{
				{Content: "first", Score: 0.9},
				{Content: "second", Score: 0.2},
				{Content: "first", Score: 0.1},
				{Content: "fourth", Score: 0.05},
			},
			wantFound: true,
			wantText:  "first\n---\nsecond\n---\nfirst",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := &fakeStore{docs: tc.docs}
			r, err := NewContextRetriever(&fakeEmbedder{vec: []float32{1}}, store, RetrieverConfig{})
			if err != nil {
				t.Fatal(err)
			}
			got, err := r.Retrieve(context.Background(), "प्रश्न")
			if err != nil {
				t.Fatalf("retrieve: %v", err)
			}
			if got.Found() != tc.wantFound {
				t.Fatalf("Found() = %v, want %v", got.Found(), tc.wantFound)
			}
			if got.Text != tc.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tc.wantText)
			}
			if store.gotK != 3 {
				t.Errorf("topK = %d, want 3", store.gotK)
			}
		})
	}
}

func TestContextRetriever_CustomSeparator(t *testing.T) {
	t.Parallel()
	store := &fakeStore{docs: []Document{{Content: "a", Score: 1}, {Content: "b", Score: 0.5}}}
	r, _ := NewContextRetriever(&fakeEmbedder{vec: []float32{1}}, store, RetrieverConfig{TopK: 2, Separator: " | "})
	got, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "a | b" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestContextRetriever_Errors(t *testing.T) {
	t.Parallel()

	r, _ := NewContextRetriever(&fakeEmbedder{err: errors.New("tei down")}, &fakeStore{}, RetrieverConfig{})
	if _, err := r.Retrieve(context.Background(), "q"); err == nil || !strings.Contains(err.Error(), "tei down") {
		t.Errorf("want embedder error surfaced, got %v", err)
	}

	r, _ = NewContextRetriever(&fakeEmbedder{vec: []float32{1}}, &fakeStore{err: ErrDimensionMismatch}, RetrieverConfig{})
	if _, err := r.Retrieve(context.Background(), "q"); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("want wrapped store error, got %v", err)
	}
}

func TestContextRetriever_WithLocalIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	if err := idx.Rebuild(ctx, fillWith(
		[]Document{{ID: "1", Content: "relevant"}, {ID: "2", Content: "unrelated"}},
		[][]float32{{1, 0}, {0, 1}},
	)); err != nil {
		t.Fatal(err)
	}

	r, _ := NewContextRetriever(&fakeEmbedder{vec: []float32{1, 0}}, idx, RetrieverConfig{})
	got, err := r.Retrieve(ctx, "q")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "relevant\n---\nunrelated" {
		t.Errorf("Text = %q", got.Text)
	}

	r, _ = NewContextRetriever(&fakeEmbedder{vec: []float32{-1, 0}}, idx, RetrieverConfig{})
	got, err = r.Retrieve(ctx, "q")
	if err != nil {
		t.Fatal(err)
	}
	if got.Found() {
		t.Errorf("want NONE for dissimilar query, got %q", got.Text)
	}
}
