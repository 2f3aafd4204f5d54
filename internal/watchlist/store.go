package watchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/escape23/crypto-dashboard/internal/models"
	"github.com/escape23/crypto-dashboard/internal/storage"
)

// Store is the user-curated watchlist, deduplicated by asset id and persisted
// in full after every mutation. The persisted form lives under the reserved
// "watchlist" key.
type Store struct {
	mu      sync.RWMutex
	kv      *storage.KV
	entries []models.WatchlistEntry
	now     func() time.Time
}

func NewStore(kv *storage.KV) *Store {
	return &Store{
		kv:      kv,
		entries: make([]models.WatchlistEntry, 0),
		now:     time.Now,
	}
}

// Load replaces the in-memory set with whatever is persisted. A missing key
// or malformed payload yields an empty watchlist, never an error: local
// storage problems must not break startup.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, storage.KeyWatchlist)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}

	entries := make([]models.WatchlistEntry, 0)
	if ok {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			slog.Warn("discarding malformed watchlist state", "error", err)
			entries = entries[:0]
		}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// Add records a snapshot of asset. Adding an id already present is a no-op;
// the stored snapshot is not refreshed.
func (s *Store) Add(ctx context.Context, asset models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == asset.ID {
			return nil
		}
	}

	s.entries = append(s.entries, models.WatchlistEntry{
		Asset:   asset,
		AddedAt: s.now().UTC(),
	})
	return s.persistLocked(ctx)
}

// Remove drops the entry with the given id. Removing an absent id is a no-op.
func (s *Store) Remove(ctx context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == assetID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return s.persistLocked(ctx)
		}
	}
	return nil
}

func (s *Store) Contains(assetID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == assetID {
			return true
		}
	}
	return false
}

// All returns the entries in insertion order.
func (s *Store) All() []models.WatchlistEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.WatchlistEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("marshal watchlist: %w", err)
	}
	if err := s.kv.Put(ctx, storage.KeyWatchlist, string(raw)); err != nil {
		return fmt.Errorf("persist watchlist: %w", err)
	}
	return nil
}
