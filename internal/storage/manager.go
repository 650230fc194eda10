package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/viewheel/backend/internal/models"
)

// ErrNotFound is returned when no record exists for a transaction.
var ErrNotFound = errors.New("submission not found")

// Store defines the interface for the submission ledger. Records are
// keyed by the payment's transaction signature.
type Store interface {
	Get(ctx context.Context, tx string) (*models.SubmissionRecord, error)
	Save(ctx context.Context, rec *models.SubmissionRecord) error
	List(ctx context.Context, limit int) ([]*models.SubmissionRecord, error)
	Close() error
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.SubmissionRecord
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.SubmissionRecord),
		now:     time.Now,
	}
}

// Get returns a copy of the record for tx.
func (s *MemoryStore) Get(_ context.Context, tx string) (*models.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[tx]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Save inserts or replaces the record, stamping CreatedAt on first write
// and UpdatedAt on every write.
func (s *MemoryStore) Save(_ context.Context, rec *models.SubmissionRecord) error {
	if rec.Tx == "" {
		return errors.New("submission record needs a transaction signature")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := cloneRecord(rec)
	if prev, ok := s.records[rec.Tx]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.records[rec.Tx] = stored

	rec.CreatedAt = stored.CreatedAt
	rec.UpdatedAt = stored.UpdatedAt
	return nil
}

// List returns the most recently updated records first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*models.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.SubmissionRecord, 0, len(s.records))
	for _, rec := range s.records {
		list = append(list, cloneRecord(rec))
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneRecord(rec *models.SubmissionRecord) *models.SubmissionRecord {
	c := *rec
	if rec.File != nil {
		f := *rec.File
		c.File = &f
	}
	return &c
}
