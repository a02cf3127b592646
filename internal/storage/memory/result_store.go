package memory

import (
	"context"
	"sort"
	"sync"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BacktestResult // keyed by run_id
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		data: make(map[string]*domain.BacktestResult),
	}
}

// Insert adds a new result summary. Returns ErrDuplicateKey if run_id exists.
func (s *ResultStore) Insert(_ context.Context, r *domain.BacktestResult) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.RunID] = copyResult(r)
	return nil
}

// GetByRunID retrieves a result by its run ID. Returns ErrNotFound if not exists.
func (s *ResultStore) GetByRunID(_ context.Context, runID string) (*domain.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return copyResult(r), nil
}

// GetByInstrumentID retrieves all results for an instrument, ordered by run_id ASC.
func (s *ResultStore) GetByInstrumentID(_ context.Context, instrumentID string) ([]*domain.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BacktestResult
	for _, r := range s.data {
		if r.InstrumentID == instrumentID {
			result = append(result, copyResult(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RunID < result[j].RunID
	})

	return result, nil
}

// GetAll retrieves all results, ordered by run_id ASC.
func (s *ResultStore) GetAll(_ context.Context) ([]*domain.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.BacktestResult, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, copyResult(r))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RunID < result[j].RunID
	})

	return result, nil
}

// copyResult deep-copies a result so callers cannot mutate stored state.
func copyResult(r *domain.BacktestResult) *domain.BacktestResult {
	out := *r
	if r.Metrics.SharpeRatio != nil {
		v := *r.Metrics.SharpeRatio
		out.Metrics.SharpeRatio = &v
	}
	out.EquityCurve = append([]domain.EquityPoint(nil), r.EquityCurve...)
	out.Trades = append([]domain.Trade(nil), r.Trades...)
	out.Warnings = append([]string(nil), r.Warnings...)
	return &out
}

var _ storage.ResultStore = (*ResultStore)(nil)
