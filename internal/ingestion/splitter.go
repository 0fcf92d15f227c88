package ingestion

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter names accepted by INGEST_SPLITTER.
const (
	SplitterWindow    = "window"
	SplitterRecursive = "recursive"
)

// Chunk is a contiguous slice of a source document. Lengths and offsets are
// counted in characters (Unicode code points), not bytes.
type Chunk struct {
	// Text is the chunk content.
	Text string
	// Start is the character offset of Text in the source, or -1 when it
	// could not be located.
	Start int
	// Index is the chunk's position within its document.
	Index int
}

// Splitter divides a document into chunks.
type Splitter interface {
	Split(text string) ([]Chunk, error)
}

// NewSplitter returns the named splitter configured with size and overlap.
func NewSplitter(name string, size, overlap int) (Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("ingestion: chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("ingestion: chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	switch name {
	case "", SplitterWindow:
		return WindowSplitter{Size: size, Overlap: overlap}, nil
	case SplitterRecursive:
		return NewRecursiveSplitter(size, overlap), nil
	}
	return nil, fmt.Errorf("ingestion: unknown splitter %q (valid: window, recursive)", name)
}

// WindowSplitter cuts fixed windows of Size characters that advance by
// Size-Overlap. Every pair of neighbouring chunks shares exactly Overlap
// characters and the chunks cover the whole document.
type WindowSplitter struct {
	Size    int
	Overlap int
}

// Split implements Splitter. Whitespace-only documents produce no chunks.
func (s WindowSplitter) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if s.Size <= 0 || s.Overlap < 0 || s.Overlap >= s.Size {
		return nil, fmt.Errorf("ingestion: invalid window %d/%d", s.Size, s.Overlap)
	}

	runes := []rune(text)
	n := len(runes)
	step := s.Size - s.Overlap

	var chunks []Chunk
	for start := 0; ; start += step {
		end := min(start+s.Size, n)
		chunks = append(chunks, Chunk{Text: string(runes[start:end]), Start: start, Index: len(chunks)})
		if end == n {
			break
		}
	}
	return chunks, nil
}

// RecursiveSplitter splits on paragraph, line, sentence (including the
// Devanagari danda) and word boundaries using langchaingo, then locates
// each chunk in the source to recover its start offset. Chunks never
// exceed the size limit but neighbours may share less than the overlap.
type RecursiveSplitter struct {
	inner   textsplitter.RecursiveCharacter
	overlap int
}

// NewRecursiveSplitter constructs a RecursiveSplitter.
func NewRecursiveSplitter(size, overlap int) RecursiveSplitter {
	return RecursiveSplitter{
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", "।", " ", ""}),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
		overlap: overlap,
	}
}

// Split implements Splitter.
func (s RecursiveSplitter) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := s.inner.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("ingestion: recursive split: %w", err)
	}

	chunks := make([]Chunk, 0, len(parts))
	searchFrom := 0 // byte offset
	prevLen := 0    // bytes
	prevStart := -1 // bytes
	for _, part := range parts {
		if part == "" {
			continue
		}
		from := 0
		if prevStart >= 0 {
			from = max(0, prevStart+prevLen-overlapBytes(text, prevStart+prevLen, s.overlap))
		}
		from = max(from, min(searchFrom, len(text)))

		start := -1
		if i := strings.Index(text[from:], part); i >= 0 {
			start = from + i
		} else if i := strings.Index(text, part); i >= 0 {
			start = i
		}

		c := Chunk{Text: part, Start: -1, Index: len(chunks)}
		if start >= 0 {
			c.Start = utf8.RuneCountInString(text[:start])
			prevStart, prevLen = start, len(part)
			searchFrom = start + 1
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// overlapBytes returns the byte length of the n characters that end at byte
// offset end.
func overlapBytes(text string, end, n int) int {
	end = min(end, len(text))
	b := end
	for i := 0; i < n && b > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:b])
		b -= size
	}
	return end - b
}
