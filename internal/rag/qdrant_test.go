package rag

import (
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

func TestPointID(t *testing.T) {
	t.Parallel()

	id := uuid.NewString()
	if got := pointID(id); got != id {
		t.Errorf("UUID id must pass through, got %q", got)
	}

	a, b := pointID("Data/a.md#0"), pointID("Data/a.md#0")
	if a != b {
		t.Errorf("derived IDs must be deterministic: %q vs %q", a, b)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("derived ID is not a UUID: %v", err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	doc := Document{
		ID:         "chunk-1",
		Content:    "नागरिकता नवीकरण",
		Source:     "citizenship/renewal.md",
		StartIndex: 900,
		Metadata:   map[string]string{"title": "Renewal", "content": "must not clobber"},
	}
	got := documentFromPayload("ignored", qdrant.NewValueMap(payloadFromDocument(doc)), 0.8)

	if got.ID != doc.ID || got.Content != doc.Content || got.Source != doc.Source || got.StartIndex != 900 {
		t.Errorf("unexpected document: %+v", got)
	}
	if got.Metadata["title"] != "Renewal" {
		t.Errorf("metadata lost: %v", got.Metadata)
	}
	if got.Score != 0.8 {
		t.Errorf("score = %v", got.Score)
	}
}

func TestClampScore(t *testing.T) {
	t.Parallel()
	for in, want := range map[float32]float32{-0.5: 0, 0: 0, 0.42: 0.42, 1: 1, 1.0001: 1} {
		if got := clampScore(in); got != want {
			t.Errorf("clampScore(%v) = %v, want %v", in, got, want)
		}
	}
}
