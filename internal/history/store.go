// Package history persists per-session conversation history and the bounded
// recent-question list.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/309dot/persona-console/internal/domain"
	"github.com/309dot/persona-console/internal/store"
)

const (
	historyPrefix      = "interview-agent-history"
	questionHistoryKey = "entry-question-history"
	maxRecentQuestions = 5
)

// Store holds the ordered chat messages for one session at a time, writing
// through to the repository on every mutation. Loading a different session id
// discards the in-memory sequence; histories are never merged across sessions.
type Store struct {
	repo     store.Repository
	greeting string

	mu        sync.Mutex
	sessionID string
	messages  []domain.ChatMessage
}

// NewStore creates a history store. The greeting seeds empty histories.
func NewStore(repo store.Repository, greeting string) *Store {
	return &Store{repo: repo, greeting: greeting}
}

func historyKey(sessionID string) string {
	return historyPrefix + "-" + sessionID
}

// Load returns the message sequence for sessionID. When nothing is persisted,
// or the persisted value fails to parse, it seeds a single agent greeting and
// persists that seed immediately. Loading twice without writes in between
// returns identical sequences.
func (s *Store) Load(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, sessionID)
}

// loadLocked populates and returns the cache for sessionID. Caller holds s.mu.
func (s *Store) loadLocked(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	if s.sessionID == sessionID && s.messages != nil {
		return copyMessages(s.messages), nil
	}

	raw, ok, err := s.repo.Get(ctx, historyKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var messages []domain.ChatMessage
	if ok {
		if err := json.Unmarshal([]byte(raw), &messages); err != nil {
			slog.Warn("purging corrupt history record", "session_id", sessionID, "error", err)
			messages = nil
		}
	}

	if len(messages) == 0 {
		messages = []domain.ChatMessage{{
			ID:        uuid.NewString(),
			Role:      domain.RoleAgent,
			Text:      s.greeting,
			Timestamp: time.Now().Format(time.RFC3339),
		}}
		if err := s.persist(ctx, sessionID, messages); err != nil {
			return nil, err
		}
	}

	s.sessionID = sessionID
	s.messages = messages
	return copyMessages(messages), nil
}

// Append creates a message from the draft with a fresh id and timestamp,
// appends it to the sequence, persists, and returns the created message.
func (s *Store) Append(ctx context.Context, sessionID string, draft domain.MessageDraft) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.loadLocked(ctx, sessionID); err != nil {
		return domain.ChatMessage{}, err
	}

	msg := domain.ChatMessage{
		ID:        uuid.NewString(),
		Role:      draft.Role,
		Text:      draft.Text,
		Timestamp: time.Now().Format(time.RFC3339),
		Category:  draft.Category,
		Blocked:   draft.Blocked,
	}
	next := append(copyMessages(s.messages), msg)
	if err := s.persist(ctx, sessionID, next); err != nil {
		return domain.ChatMessage{}, err
	}
	s.messages = next
	return msg, nil
}

// Clear empties the in-memory and persisted sequence for sessionID. The next
// Load reseeds the greeting.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, historyKey(sessionID)); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if s.sessionID == sessionID {
		s.messages = nil
		s.sessionID = ""
	}
	return nil
}

// RememberQuestion puts q at the front of the recent-question list, dropping
// duplicates and clamping the list at its bound.
func (s *Store) RememberQuestion(ctx context.Context, q string) error {
	recent, err := s.RecentQuestions(ctx)
	if err != nil {
		return err
	}

	next := []string{q}
	for _, item := range recent {
		if item != q {
			next = append(next, item)
		}
	}
	if len(next) > maxRecentQuestions {
		next = next[:maxRecentQuestions]
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode recent questions: %w", err)
	}
	if err := s.repo.Put(ctx, questionHistoryKey, string(raw)); err != nil {
		return fmt.Errorf("persist recent questions: %w", err)
	}
	return nil
}

// RecentQuestions returns the bounded most-recent-first question list. A value
// that fails to parse is purged and treated as empty.
func (s *Store) RecentQuestions(ctx context.Context) ([]string, error) {
	raw, ok, err := s.repo.Get(ctx, questionHistoryKey)
	if err != nil {
		return nil, fmt.Errorf("load recent questions: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var recent []string
	if err := json.Unmarshal([]byte(raw), &recent); err != nil {
		slog.Warn("purging corrupt recent-question record", "error", err)
		if delErr := s.repo.Delete(ctx, questionHistoryKey); delErr != nil {
			return nil, fmt.Errorf("purge recent questions: %w", delErr)
		}
		return nil, nil
	}
	return recent, nil
}

func (s *Store) persist(ctx context.Context, sessionID string, messages []domain.ChatMessage) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.repo.Put(ctx, historyKey(sessionID), string(raw)); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

func copyMessages(messages []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(messages))
	copy(out, messages)
	return out
}
