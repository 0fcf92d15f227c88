package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// stores returns one instance of every ConversationStore implementation.
func stores(t *testing.T) map[string]ConversationStore {
	t.Helper()
	return map[string]ConversationStore{
		"sqlite": openTestStore(t),
		"memory": NewMemoryStore(),
	}
}

func Test_Store_AppendAndRecent(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.Append(ctx, "sess-a",
				Turn{Role: RoleUser, Content: "नमस्ते"},
				Turn{Role: RoleAssistant, Content: "नमस्ते! कसरी सहयोग गरौं?"},
			)
			if err != nil {
				t.Fatalf("append: %v", err)
			}

			turns, err := s.Recent(ctx, "sess-a", 10)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(turns) != 2 {
				t.Fatalf("want 2 turns, got %d", len(turns))
			}
			if turns[0].Role != RoleUser || turns[0].Content != "नमस्ते" {
				t.Errorf("turn[0]: got %s/%s", turns[0].Role, turns[0].Content)
			}
			if turns[1].Role != RoleAssistant {
				t.Errorf("turn[1]: want assistant, got %s", turns[1].Role)
			}
			if turns[0].CreatedAt.IsZero() {
				t.Error("CreatedAt should be stamped")
			}
		})
	}
}

func Test_Store_RecentWindowIsTailOldestFirst(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := range 8 {
				role := RoleUser
				if i%2 == 1 {
					role = RoleAssistant
				}
				if err := s.Append(ctx, "sess-b", Turn{Role: role, Content: fmt.Sprintf("m%d", i)}); err != nil {
					t.Fatalf("append: %v", err)
				}
			}

			turns, err := s.Recent(ctx, "sess-b", 5)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(turns) != 5 {
				t.Fatalf("want 5 turns, got %d", len(turns))
			}
			for i, turn := range turns {
				if want := fmt.Sprintf("m%d", i+3); turn.Content != want {
					t.Errorf("turn[%d]: want %q, got %q", i, want, turn.Content)
				}
			}
		})
	}
}

func Test_Store_SessionIsolationAndClear(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Append(ctx, "x", Turn{Role: RoleUser, Content: "from x"}); err != nil {
				t.Fatal(err)
			}
			if err := s.Append(ctx, "y", Turn{Role: RoleUser, Content: "from y"}); err != nil {
				t.Fatal(err)
			}

			if err := s.Clear(ctx, "x"); err != nil {
				t.Fatalf("clear: %v", err)
			}
			gotX, err := s.Recent(ctx, "x", 10)
			if err != nil {
				t.Fatal(err)
			}
			gotY, err := s.Recent(ctx, "y", 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(gotX) != 0 {
				t.Errorf("cleared session still has %d turns", len(gotX))
			}
			if len(gotY) != 1 || gotY[0].Content != "from y" {
				t.Errorf("other session affected: %v", gotY)
			}
		})
	}
}

func Test_Store_InvalidRoleRejectsWholeAppend(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.Append(ctx, "z",
				Turn{Role: RoleUser, Content: "ok"},
				Turn{Role: "system", Content: "nope"},
			)
			if err == nil {
				t.Fatal("expected error for invalid role")
			}
			turns, err := s.Recent(ctx, "z", 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(turns) != 0 {
				t.Errorf("partial append stored %d turns", len(turns))
			}
		})
	}
}

func Test_Store_EmptySessionAndZeroLimit(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			turns, err := s.Recent(ctx, "empty", 10)
			if err != nil || len(turns) != 0 {
				t.Errorf("empty session: got %v, %v", turns, err)
			}
			if err := s.Append(ctx, "empty", Turn{Role: RoleUser, Content: "a"}); err != nil {
				t.Fatal(err)
			}
			turns, err = s.Recent(ctx, "empty", 0)
			if err != nil || len(turns) != 0 {
				t.Errorf("n=0: got %v, %v", turns, err)
			}
		})
	}
}

func Test_Store_ConcurrentAppends(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := range 10 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = s.Append(ctx, "c",
						Turn{Role: RoleUser, Content: fmt.Sprintf("q%d", i)},
						Turn{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)},
					)
				}()
			}
			wg.Wait()

			turns, err := s.Recent(ctx, "c", 100)
			if err != nil {
				t.Fatal(err)
			}
			if len(turns) != 20 {
				t.Fatalf("want 20 turns, got %d", len(turns))
			}
			// Each append is atomic, so every question is directly followed by
			// its answer.
			for i := 0; i < len(turns); i += 2 {
				if turns[i].Role != RoleUser || turns[i+1].Role != RoleAssistant ||
					turns[i].Content[1:] != turns[i+1].Content[1:] {
					t.Errorf("interleaved pair at %d: %v %v", i, turns[i], turns[i+1])
				}
			}
		})
	}
}

func Test_Store_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "p", Turn{Role: RoleUser, Content: "persist me"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	turns, err := s2.Recent(ctx, "p", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].Content != "persist me" {
		t.Errorf("got %v after reopen", turns)
	}
}

func Test_Store_OpenFromEnvMemory(t *testing.T) {
	for _, v := range []string{"memory", ":memory:", "disabled"} {
		t.Run(v, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			t.Setenv("JUNU_HISTORY_DB", v)

			s, err := OpenFromEnv()
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			if _, ok := s.(*MemoryStore); !ok {
				t.Errorf("got %T, want *MemoryStore", s)
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("in-memory history created files: %v", entries)
			}
		})
	}
}
