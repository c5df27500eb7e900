// Package session persists the active visitor identity across restarts.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/309dot/persona-console/internal/domain"
	"github.com/309dot/persona-console/internal/store"
)

// storageKey is the fixed key the session record lives under.
const storageKey = "interview-agent-session"

// Store holds the current visitor's SessionInfo, one per console instance.
// The session id's authority is entirely delegated to the remote registration
// endpoint; the store never validates it.
type Store struct {
	repo store.Repository
}

// NewStore creates a session store backed by the given repository.
func NewStore(repo store.Repository) *Store {
	return &Store{repo: repo}
}

// Get returns the persisted session, or nil when absent. A value that fails to
// parse is purged and treated as absent; no error reaches the caller for it.
func (s *Store) Get(ctx context.Context) (*domain.SessionInfo, error) {
	raw, ok, err := s.repo.Get(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var info domain.SessionInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		slog.Warn("purging corrupt session record", "error", err)
		if delErr := s.repo.Delete(ctx, storageKey); delErr != nil {
			return nil, fmt.Errorf("purge corrupt session: %w", delErr)
		}
		return nil, nil
	}
	return &info, nil
}

// Set overwrites and persists the session.
func (s *Store) Set(ctx context.Context, info domain.SessionInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.repo.Put(ctx, storageKey, string(raw)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Clear removes the persisted session; subsequent Get returns nil.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.repo.Delete(ctx, storageKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
