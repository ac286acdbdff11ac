package memory

import (
	"context"
	"sync"
	"time"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

type linkEntry struct {
	record    model.LinkingRecord
	expiresAt time.Time
}

// linkingRecordStore implements outbound.LinkingRecordPort in process memory.
// Records do not survive a restart; use the redis store when more than one
// instance runs.
type linkingRecordStore struct {
	mu      sync.RWMutex
	records map[string]linkEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewLinkingRecordStore creates an in-memory linking record store.
func NewLinkingRecordStore(ttl time.Duration) outbound.LinkingRecordPort {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &linkingRecordStore{
		records: make(map[string]linkEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *linkingRecordStore) Create(ctx context.Context, record *model.LinkingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)
	if _, ok := s.records[record.ID]; ok {
		return outbound.ErrLinkingRecordExists
	}
	s.records[record.ID] = linkEntry{record: *record, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *linkingRecordStore) Get(ctx context.Context, id string) (*model.LinkingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.records[id]
	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, nil
	}
	record := entry.record
	return &record, nil
}

func (s *linkingRecordStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

// prune drops expired entries. Caller holds mu.
func (s *linkingRecordStore) prune(now time.Time) {
	for id, entry := range s.records {
		if !now.Before(entry.expiresAt) {
			delete(s.records, id)
		}
	}
}

// Compile-time check
var _ outbound.LinkingRecordPort = (*linkingRecordStore)(nil)
