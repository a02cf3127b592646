package storage

import (
	"context"

	"intraday-backtest-lab/internal/domain"
)

// InstrumentStore provides access to instruments storage.
type InstrumentStore interface {
	// Insert adds a new instrument. Returns ErrDuplicateKey if instrument_id exists.
	Insert(ctx context.Context, ins *domain.Instrument) error

	// GetByID retrieves an instrument by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, instrumentID string) (*domain.Instrument, error)

	// GetAll retrieves all instruments, ordered by instrument_id ASC.
	GetAll(ctx context.Context) ([]*domain.Instrument, error)
}

// PriceBarStore provides access to price_bars storage.
type PriceBarStore interface {
	// InsertBulk adds bars for an instrument. Fails entire batch on
	// duplicate (instrument_id, timestamp_ms).
	InsertBulk(ctx context.Context, instrumentID string, bars []domain.PriceBar) error

	// GetByInstrumentID retrieves all bars for an instrument, ordered by timestamp ASC.
	GetByInstrumentID(ctx context.Context, instrumentID string) ([]domain.PriceBar, error)

	// GetByTimeRange retrieves bars for an instrument within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, instrumentID string, start, end int64) ([]domain.PriceBar, error)
}

// TradeStore provides access to trades storage.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []domain.Trade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.Trade, error)

	// GetByInstrumentStrategy retrieves all trades for an instrument/strategy
	// combination across every run, ordered by entry timestamp ASC.
	GetByInstrumentStrategy(ctx context.Context, instrumentID, strategyID string) ([]domain.Trade, error)

	// GetByRunID retrieves the trades of a single run, ordered by entry
	// timestamp ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.Trade, error)
}

// ResultStore provides access to backtest_results storage. Only the run
// summary is stored here; trades and equity points live in their own
// stores keyed by the same run.
type ResultStore interface {
	// Insert adds a new result summary. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.BacktestResult) error

	// GetByRunID retrieves a result by its run ID. Returns ErrNotFound if not exists.
	GetByRunID(ctx context.Context, runID string) (*domain.BacktestResult, error)

	// GetByInstrumentID retrieves all results for an instrument, ordered by run_id ASC.
	GetByInstrumentID(ctx context.Context, instrumentID string) ([]*domain.BacktestResult, error)

	// GetAll retrieves all results, ordered by run_id ASC.
	GetAll(ctx context.Context) ([]*domain.BacktestResult, error)
}

// EquityCurveStore provides access to equity_curves storage.
type EquityCurveStore interface {
	// InsertBulk adds curve points for a run. Fails entire batch on
	// duplicate (run_id, timestamp_ms).
	InsertBulk(ctx context.Context, runID string, points []domain.EquityPoint) error

	// GetByRunID retrieves the curve for a run, ordered by timestamp ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.EquityPoint, error)
}
