package store

import (
	"context"
	"sync"
	"time"

	"github.com/spigell/cv-wizard/internal/fields"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	updates map[string][]FieldUpdate
}

// FieldUpdate is one value written by a SAVE_AND_NEXT turn.
type FieldUpdate struct {
	SessionID string
	Key       string
	Value     any
	CreatedAt time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		updates: make(map[string][]FieldUpdate),
	}
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, cv map[string]any, updates map[string]any, schema *fields.Schema, filledKeys []string) error {
	snapshot, err := cloneCV(cv)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[sessionID] = &Record{
		SessionID:   sessionID,
		CV:          snapshot,
		FilledKeys:  cloneKeys(filledKeys),
		AllowedKeys: allowedKeys(schema),
		UpdatedAt:   now,
	}
	for key, value := range updates {
		s.updates[sessionID] = append(s.updates[sessionID], FieldUpdate{
			SessionID: sessionID,
			Key:       key,
			Value:     value,
			CreatedAt: now,
		})
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	cv, err := cloneCV(record.CV)
	if err != nil {
		return nil, err
	}
	return &Record{
		SessionID:   record.SessionID,
		CV:          cv,
		FilledKeys:  cloneKeys(record.FilledKeys),
		AllowedKeys: cloneKeys(record.AllowedKeys),
		UpdatedAt:   record.UpdatedAt,
	}, nil
}

// Updates returns the field updates recorded for sessionID, oldest first.
func (s *MemoryStore) Updates(sessionID string) []FieldUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]FieldUpdate, len(s.updates[sessionID]))
	copy(out, s.updates[sessionID])
	return out
}

func (s *MemoryStore) Close() error {
	return nil
}
