// Package memory is an in-process audit store for tests and local runs. It
// honours the same insert-if-absent and expiry index contracts as the
// database stores.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fcp-audit/internal/audit/models"
	"fcp-audit/internal/audit/retention"
)

// Store keeps records in insertion order so ties on Received list stably.
type Store struct {
	mu      sync.RWMutex
	exists  bool
	order   []string
	records map[string]models.AuditRecord
	index   *retention.ExpiryIndex
}

func New() *Store {
	return &Store{records: make(map[string]models.AuditRecord)}
}

func (s *Store) InsertIfAbsent(ctx context.Context, rec models.AuditRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exists = true
	if _, ok := s.records[rec.ID]; ok {
		return false, nil
	}
	s.records[rec.ID] = cloneRecord(rec)
	s.order = append(s.order, rec.ID)
	return true, nil
}

func (s *Store) List(ctx context.Context, page models.Page) ([]models.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	all := make([]models.AuditRecord, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, s.records[id])
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Received.After(all[j].Received)
	})

	offset := page.Offset()
	if page.BeyondRange() || offset >= len(all) {
		return []models.AuditRecord{}, nil
	}
	end := min(offset+page.Size, len(all))
	out := make([]models.AuditRecord, 0, end-offset)
	for _, rec := range all[offset:end] {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists, ctx.Err()
}

func (s *Store) ExpiryIndex(ctx context.Context) (*retention.ExpiryIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, ctx.Err()
	}
	idx := *s.index
	return &idx, ctx.Err()
}

// CreateExpiryIndex creates or replaces the expiry index; like a document
// store, creating an index creates the collection.
func (s *Store) CreateExpiryIndex(ctx context.Context, expireAfter time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exists = true
	s.index = &retention.ExpiryIndex{
		Name:        retention.IndexName,
		Field:       retention.ExpiryField,
		ExpireAfter: expireAfter,
	}
	return nil
}

func (s *Store) DropExpiryIndex(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = nil
	return nil
}

// PurgeExpired removes records whose Received is older than the expiry index
// allows at now. Without an index nothing expires.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return 0, nil
	}

	cutoff := now.Add(-s.index.ExpireAfter)
	kept := s.order[:0]
	var purged int64
	for _, id := range s.order {
		if s.records[id].Received.Before(cutoff) {
			delete(s.records, id)
			purged++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return purged, nil
}

func cloneRecord(rec models.AuditRecord) models.AuditRecord {
	out := rec
	out.Audit = rec.Audit.Clone()
	return out
}
