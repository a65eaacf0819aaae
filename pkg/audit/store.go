// Package audit records pipeline-stage transitions and reports on them
package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Store is the durable, append-only audit log
type Store interface {
	Append(ctx context.Context, entry models.AuditEntry) error
	ListByBatch(ctx context.Context, batchID string) ([]models.AuditEntry, error)
	ListRange(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error)
}

// Sink receives every entry the Store accepted, e.g. an event stream
type Sink interface {
	PublishAuditEntry(ctx context.Context, entry models.AuditEntry) error
}

// LinkSource looks up the persisted match links of a batch
type LinkSource interface {
	ListMatchLinks(ctx context.Context, batchID string) ([]models.MatchLink, error)
}

// MemoryStore is an in-process Store, used when no database is configured and in tests
type MemoryStore struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Metadata = entry.Metadata.Clone()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStore) ListByBatch(_ context.Context, batchID string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.AuditEntry{}
	for _, e := range s.entries {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	sortChronological(out)
	return out, nil
}

// ListRange returns entries with from <= timestamp < to
func (s *MemoryStore) ListRange(_ context.Context, from, to time.Time) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.AuditEntry{}
	for _, e := range s.entries {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	sortChronological(out)
	return out, nil
}

// sortChronological orders by timestamp, keeping append order for equal timestamps
func sortChronological(entries []models.AuditEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}
