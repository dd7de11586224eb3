package store

import (
	"context"
	"fmt"
	"strconv"
)

//go:generate mockgen -source=cursor_store.go -destination=../mocks/cursor_store.go -package=mocks -mock_names=CursorStore=MockCursorStore

// KeyValueStore is the subset of Store that cursor persistence needs
type KeyValueStore interface {
	SetKeyValue(ctx context.Context, key string, value string) error
	GetKeyValue(ctx context.Context, key string) (string, error)
}

// CursorStore defines the interface for storing and retrieving relay cursors
type CursorStore interface {
	// GetRelayCursor retrieves the last delivered notification cursor of a relay
	GetRelayCursor(ctx context.Context, relay string) (uint64, error)
	// SetRelayCursor stores the last delivered notification cursor of a relay
	SetRelayCursor(ctx context.Context, relay string, cursor uint64) error
}

type cursorStore struct {
	kv KeyValueStore
}

// NewCursorStore creates a new cursor store backed by the key-value store
func NewCursorStore(kv KeyValueStore) CursorStore {
	return &cursorStore{kv: kv}
}

// GetRelayCursor retrieves the last delivered notification cursor of a relay
func (s *cursorStore) GetRelayCursor(ctx context.Context, relay string) (uint64, error) {
	value, err := s.kv.GetKeyValue(ctx, relayCursorKey(relay))
	if err != nil {
		return 0, fmt.Errorf("failed to get relay cursor: %w", err)
	}
	if value == "" {
		return 0, nil // Return 0 if no cursor exists
	}

	cursor, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse relay cursor: %w", err)
	}

	return cursor, nil
}

// SetRelayCursor stores the last delivered notification cursor of a relay
func (s *cursorStore) SetRelayCursor(ctx context.Context, relay string, cursor uint64) error {
	err := s.kv.SetKeyValue(ctx, relayCursorKey(relay), strconv.FormatUint(cursor, 10))
	if err != nil {
		return fmt.Errorf("failed to set relay cursor: %w", err)
	}

	return nil
}

func relayCursorKey(relay string) string {
	return fmt.Sprintf("relay_cursor:%s", relay)
}
