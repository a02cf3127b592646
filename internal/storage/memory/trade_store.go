package memory

import (
	"context"
	"sort"
	"sync"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]domain.Trade // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]domain.Trade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[t.TradeID] = *t
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(_ context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		if t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[t.TradeID] = struct{}{}
	}

	// Second pass: insert all
	for _, t := range trades {
		s.data[t.TradeID] = t
	}

	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return &t, nil
}

// GetByInstrumentStrategy retrieves all trades for an instrument/strategy
// combination, ordered by entry timestamp ASC.
func (s *TradeStore) GetByInstrumentStrategy(_ context.Context, instrumentID, strategyID string) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Trade
	for _, t := range s.data {
		if t.InstrumentID == instrumentID && t.StrategyID == strategyID {
			result = append(result, t)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EntryTimestampMs < result[j].EntryTimestampMs
	})

	return result, nil
}

// GetByRunID retrieves the trades of a single run, ordered by entry
// timestamp ASC.
func (s *TradeStore) GetByRunID(_ context.Context, runID string) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Trade
	for _, t := range s.data {
		if t.RunID == runID {
			result = append(result, t)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EntryTimestampMs < result[j].EntryTimestampMs
	})

	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
