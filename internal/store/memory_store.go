package store

import (
	"context"
	"sync"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

// MemoryBioCodeStore keeps the latest sequence per mission day in memory
type MemoryBioCodeStore struct {
	mu    sync.RWMutex
	byDay map[uint16]*biocode.Sequence
}

// NewMemoryBioCodeStore creates an empty in-memory store
func NewMemoryBioCodeStore() *MemoryBioCodeStore {
	return &MemoryBioCodeStore{byDay: make(map[uint16]*biocode.Sequence)}
}

// Save implements BioCodeStore
func (s *MemoryBioCodeStore) Save(ctx context.Context, seq *biocode.Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *seq
	s.byDay[seq.MissionDay] = &cp
	return nil
}

// Load implements BioCodeStore
func (s *MemoryBioCodeStore) Load(ctx context.Context, day uint16) (*biocode.Sequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.byDay[day]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *seq
	return &cp, nil
}

// Len returns the number of stored days
func (s *MemoryBioCodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byDay)
}

// Close implements BioCodeStore
func (s *MemoryBioCodeStore) Close() error {
	return nil
}

// MemoryAuditStore keeps audit entries in append order
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

// NewMemoryAuditStore creates an empty in-memory audit store
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Append implements AuditStore
func (s *MemoryAuditStore) Append(ctx context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// List implements AuditStore
func (s *MemoryAuditStore) List(ctx context.Context) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Close implements AuditStore
func (s *MemoryAuditStore) Close() error {
	return nil
}
