// Package store persists conversation history for Junu. Each session ID has
// its own ordered, append-only thread of turns; callers window it at query
// time and older turns stay stored.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is an utterance from the citizen.
	RoleUser Role = "user"
	// RoleAssistant is an answer produced by Junu.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// Turn is a single utterance in a conversation.
type Turn struct {
	// Role is the author of the turn.
	Role Role `json:"role"`
	// Content is the utterance text.
	Content string `json:"content"`
	// CreatedAt is when the turn was persisted. Zero for client-owned history.
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// ConversationStore persists and retrieves conversation history keyed by
// session ID. Implementations must be safe for concurrent use.
type ConversationStore interface {
	// Append persists turns for the session atomically: either all are
	// stored or none are.
	Append(ctx context.Context, session string, turns ...Turn) error
	// Recent returns the most recent n turns for the session, ordered
	// oldest-first. If fewer than n exist, all are returned.
	Recent(ctx context.Context, session string, n int) ([]Turn, error)
	// Clear deletes every turn of the session.
	Clear(ctx context.Context, session string) error
	// Close releases any resources held by the store.
	Close() error
}

// DefaultDBPath returns the default path for the conversation history database.
// It resolves to ~/.junu/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".junu")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// OpenFromEnv opens the store named by JUNU_HISTORY_DB. The values "memory",
// ":memory:" and "disabled" select a MemoryStore; an empty value selects
// DefaultDBPath.
func OpenFromEnv() (ConversationStore, error) {
	path := os.Getenv("JUNU_HISTORY_DB")
	switch path {
	case "memory", ":memory:", "disabled":
		return NewMemoryStore(), nil
	case "":
		p, err := DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: could not create %s: %w", filepath.Dir(path), err)
		}
	}
	return Open(path)
}

func validateTurns(turns []Turn) error {
	for i, t := range turns {
		if !t.Role.Valid() {
			return fmt.Errorf("store: turn %d has invalid role %q", i, t.Role)
		}
	}
	return nil
}
