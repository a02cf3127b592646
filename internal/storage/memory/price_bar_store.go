package memory

import (
	"context"
	"sort"
	"sync"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

// PriceBarStore is an in-memory implementation of storage.PriceBarStore.
type PriceBarStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.PriceBar // instrument_id -> timestamp_ms -> bar
}

// NewPriceBarStore creates a new in-memory price bar store.
func NewPriceBarStore() *PriceBarStore {
	return &PriceBarStore{
		data: make(map[string]map[int64]domain.PriceBar),
	}
}

// InsertBulk adds bars for an instrument. Fails entire batch on
// duplicate (instrument_id, timestamp_ms).
func (s *PriceBarStore) InsertBulk(_ context.Context, instrumentID string, bars []domain.PriceBar) error {
	if instrumentID == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[instrumentID]

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[int64]struct{}, len(bars))
	for _, b := range bars {
		if _, exists := existing[b.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[b.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[b.TimestampMs] = struct{}{}
	}

	// Second pass: insert all
	if existing == nil {
		existing = make(map[int64]domain.PriceBar, len(bars))
		s.data[instrumentID] = existing
	}
	for _, b := range bars {
		existing[b.TimestampMs] = b
	}

	return nil
}

// GetByInstrumentID retrieves all bars for an instrument, ordered by timestamp ASC.
func (s *PriceBarStore) GetByInstrumentID(_ context.Context, instrumentID string) ([]domain.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PriceBar
	for _, b := range s.data[instrumentID] {
		result = append(result, b)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetByTimeRange retrieves bars for an instrument within [start, end] (inclusive).
func (s *PriceBarStore) GetByTimeRange(_ context.Context, instrumentID string, start, end int64) ([]domain.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PriceBar
	for ts, b := range s.data[instrumentID] {
		if ts >= start && ts <= end {
			result = append(result, b)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.PriceBarStore = (*PriceBarStore)(nil)
