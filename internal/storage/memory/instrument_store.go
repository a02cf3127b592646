// Package memory provides in-memory store implementations, used by
// tests and single-process pipeline runs that do not need durability.
package memory

import (
	"context"
	"sort"
	"sync"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

// InstrumentStore is an in-memory implementation of storage.InstrumentStore.
type InstrumentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Instrument // keyed by instrument_id
}

// NewInstrumentStore creates a new in-memory instrument store.
func NewInstrumentStore() *InstrumentStore {
	return &InstrumentStore{
		data: make(map[string]*domain.Instrument),
	}
}

// Insert adds a new instrument. Returns ErrDuplicateKey if instrument_id exists.
func (s *InstrumentStore) Insert(_ context.Context, ins *domain.Instrument) error {
	if ins == nil || ins.InstrumentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[ins.InstrumentID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *ins
	s.data[ins.InstrumentID] = &copy
	return nil
}

// GetByID retrieves an instrument by its ID. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetByID(_ context.Context, instrumentID string) (*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ins, exists := s.data[instrumentID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *ins
	return &copy, nil
}

// GetAll retrieves all instruments, ordered by instrument_id ASC.
func (s *InstrumentStore) GetAll(_ context.Context) ([]*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Instrument, 0, len(s.data))
	for _, ins := range s.data {
		copy := *ins
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].InstrumentID < result[j].InstrumentID
	})

	return result, nil
}

var _ storage.InstrumentStore = (*InstrumentStore)(nil)
