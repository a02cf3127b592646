package memory

import (
	"context"
	"sort"
	"sync"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

// EquityCurveStore is an in-memory implementation of storage.EquityCurveStore.
type EquityCurveStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.EquityPoint // run_id -> timestamp_ms -> point
}

// NewEquityCurveStore creates a new in-memory equity curve store.
func NewEquityCurveStore() *EquityCurveStore {
	return &EquityCurveStore{
		data: make(map[string]map[int64]domain.EquityPoint),
	}
}

// InsertBulk adds curve points for a run. Fails entire batch on
// duplicate (run_id, timestamp_ms).
func (s *EquityCurveStore) InsertBulk(_ context.Context, runID string, points []domain.EquityPoint) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[runID]

	batchKeys := make(map[int64]struct{}, len(points))
	for _, p := range points {
		if _, exists := existing[p.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[p.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[p.TimestampMs] = struct{}{}
	}

	if existing == nil {
		existing = make(map[int64]domain.EquityPoint, len(points))
		s.data[runID] = existing
	}
	for _, p := range points {
		existing[p.TimestampMs] = p
	}

	return nil
}

// GetByRunID retrieves the curve for a run, ordered by timestamp ASC.
func (s *EquityCurveStore) GetByRunID(_ context.Context, runID string) ([]domain.EquityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.EquityPoint
	for _, p := range s.data[runID] {
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.EquityCurveStore = (*EquityCurveStore)(nil)
