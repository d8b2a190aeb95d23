package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty indicates a submit attempt on a staging area with no lines.
var ErrEmpty = errors.New("staging: no staged lines")

// Entry is one staged material line waiting to be recorded.
type Entry struct {
	MaterialID        int64   `json:"material_id"`
	MaterialVersionID *int64  `json:"material_version_id,omitempty"`
	Quantity          float64 `json:"quantity"`
	Note              string  `json:"note,omitempty"`
}

// Store keeps per-session staging areas in Redis so half-built movements
// survive page reloads but disappear with the session.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a staging store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(sessionID string, warehouseID int64) string {
	return fmt.Sprintf("staging:%s:%d", sessionID, warehouseID)
}

// List returns the staged lines for one warehouse.
func (s *Store) List(ctx context.Context, sessionID string, warehouseID int64) ([]Entry, error) {
	data, err := s.client.Get(ctx, s.key(sessionID, warehouseID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Entry{}, nil
		}
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Add stages a line, merging quantities when the same material and version
// is staged twice. The TTL is refreshed on every write.
func (s *Store) Add(ctx context.Context, sessionID string, warehouseID int64, entry Entry) ([]Entry, error) {
	entries, err := s.List(ctx, sessionID, warehouseID)
	if err != nil {
		return nil, err
	}
	merged := false
	for i, existing := range entries {
		if existing.MaterialID == entry.MaterialID && equalVersion(existing.MaterialVersionID, entry.MaterialVersionID) {
			entries[i].Quantity += entry.Quantity
			if entry.Note != "" {
				entries[i].Note = entry.Note
			}
			merged = true
			break
		}
	}
	if !merged {
		entries = append(entries, entry)
	}
	if err := s.save(ctx, sessionID, warehouseID, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Remove drops the staged line for one material.
func (s *Store) Remove(ctx context.Context, sessionID string, warehouseID, materialID int64) ([]Entry, error) {
	entries, err := s.List(ctx, sessionID, warehouseID)
	if err != nil {
		return nil, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.MaterialID != materialID {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return []Entry{}, s.Clear(ctx, sessionID, warehouseID)
	}
	if err := s.save(ctx, sessionID, warehouseID, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// Clear removes the whole staging area for one warehouse.
func (s *Store) Clear(ctx context.Context, sessionID string, warehouseID int64) error {
	return s.client.Del(ctx, s.key(sessionID, warehouseID)).Err()
}

func (s *Store) save(ctx context.Context, sessionID string, warehouseID int64, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sessionID, warehouseID), data, s.ttl).Err()
}

func equalVersion(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
