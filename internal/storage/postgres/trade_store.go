package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, run_id, instrument_id, strategy_id,
	entry_timestamp_ms, entry_price, direction, size,
	exit_timestamp_ms, exit_price, exit_reason,
	realized_pnl, costs
`

const insertTradeQuery = `
	INSERT INTO trades (
		trade_id, run_id, instrument_id, strategy_id,
		entry_timestamp_ms, entry_price, direction, size,
		exit_timestamp_ms, exit_price, exit_reason,
		realized_pnl, costs
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8,
		$9, $10, $11,
		$12, $13
	)
`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	_, err := s.pool.Exec(ctx, insertTradeQuery, tradeArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range trades {
		if _, err := tx.Exec(ctx, insertTradeQuery, tradeArgs(&trades[i])...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetByInstrumentStrategy retrieves all trades for an instrument/strategy
// combination, ordered by entry timestamp ASC.
func (s *TradeStore) GetByInstrumentStrategy(ctx context.Context, instrumentID, strategyID string) ([]domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE instrument_id = $1 AND strategy_id = $2
		ORDER BY entry_timestamp_ms ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID, strategyID)
	if err != nil {
		return nil, fmt.Errorf("get trades by instrument/strategy: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByRunID retrieves the trades of a single run, ordered by entry
// timestamp ASC.
func (s *TradeStore) GetByRunID(ctx context.Context, runID string) ([]domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE run_id = $1
		ORDER BY entry_timestamp_ms ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get trades by run id: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func tradeArgs(t *domain.Trade) []any {
	return []any{
		t.TradeID, t.RunID, t.InstrumentID, t.StrategyID,
		t.EntryTimestampMs, t.EntryPrice, t.Direction, t.Size,
		t.ExitTimestampMs, t.ExitPrice, t.ExitReason,
		t.RealizedPnL, t.Costs,
	}
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade

	err := row.Scan(
		&t.TradeID, &t.RunID, &t.InstrumentID, &t.StrategyID,
		&t.EntryTimestampMs, &t.EntryPrice, &t.Direction, &t.Size,
		&t.ExitTimestampMs, &t.ExitPrice, &t.ExitReason,
		&t.RealizedPnL, &t.Costs,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
