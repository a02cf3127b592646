package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

// ResultStore implements storage.ResultStore using PostgreSQL. Equity
// curves and trades are persisted through their own stores; rows here
// carry the flattened config and metrics only.
type ResultStore struct {
	pool *Pool
}

// NewResultStore creates a new ResultStore.
func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

const resultColumns = `
	run_id, instrument_id, strategy_id,
	initial_equity, risk_fraction, entry_policy, lot_size, bar_interval_ms,
	slippage_bps, commission_per_side, mark_to_market,
	atr_window, stop_atr_mult, target_atr_mult, max_leverage,
	total_return, max_drawdown, win_rate, trade_count,
	avg_trade_pnl, largest_win, largest_loss, sharpe_ratio,
	insolvent, insolvent_at_ms, warnings
`

// Insert adds a new result summary. Returns ErrDuplicateKey if run_id exists.
func (s *ResultStore) Insert(ctx context.Context, r *domain.BacktestResult) error {
	query := `
		INSERT INTO backtest_results (` + resultColumns + `)
		VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22, $23,
			$24, $25, $26
		)
	`

	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.InstrumentID, r.StrategyID,
		r.Config.InitialEquity, r.Config.RiskFraction, string(r.Config.EntryPolicy), r.Config.LotSize, r.Config.BarIntervalMs,
		r.Config.SlippageBps, r.Config.CommissionPerSide, r.Config.MarkToMarket,
		r.Config.ATRWindow, r.Config.StopATRMult, r.Config.TargetATRMult, r.Config.MaxLeverage,
		r.Metrics.TotalReturn, r.Metrics.MaxDrawdown, r.Metrics.WinRate, r.Metrics.TradeCount,
		r.Metrics.AvgTradePnL, r.Metrics.LargestWin, r.Metrics.LargestLoss, r.Metrics.SharpeRatio,
		r.Insolvent, r.InsolventAtMs, warnings,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert backtest result: %w", err)
	}
	return nil
}

// GetByRunID retrieves a result by its run ID. Returns ErrNotFound if not exists.
func (s *ResultStore) GetByRunID(ctx context.Context, runID string) (*domain.BacktestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM backtest_results WHERE run_id = $1`

	row := s.pool.QueryRow(ctx, query, runID)
	r, err := scanResult(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest result by run id: %w", err)
	}
	return r, nil
}

// GetByInstrumentID retrieves all results for an instrument, ordered by run_id ASC.
func (s *ResultStore) GetByInstrumentID(ctx context.Context, instrumentID string) ([]*domain.BacktestResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM backtest_results
		WHERE instrument_id = $1
		ORDER BY run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("get backtest results by instrument id: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// GetAll retrieves all results, ordered by run_id ASC.
func (s *ResultStore) GetAll(ctx context.Context) ([]*domain.BacktestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM backtest_results ORDER BY run_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all backtest results: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// scanResult scans a single row into a BacktestResult.
func scanResult(row pgx.Row) (*domain.BacktestResult, error) {
	var r domain.BacktestResult
	var entryPolicy string

	err := row.Scan(
		&r.RunID, &r.InstrumentID, &r.StrategyID,
		&r.Config.InitialEquity, &r.Config.RiskFraction, &entryPolicy, &r.Config.LotSize, &r.Config.BarIntervalMs,
		&r.Config.SlippageBps, &r.Config.CommissionPerSide, &r.Config.MarkToMarket,
		&r.Config.ATRWindow, &r.Config.StopATRMult, &r.Config.TargetATRMult, &r.Config.MaxLeverage,
		&r.Metrics.TotalReturn, &r.Metrics.MaxDrawdown, &r.Metrics.WinRate, &r.Metrics.TradeCount,
		&r.Metrics.AvgTradePnL, &r.Metrics.LargestWin, &r.Metrics.LargestLoss, &r.Metrics.SharpeRatio,
		&r.Insolvent, &r.InsolventAtMs, &r.Warnings,
	)
	if err != nil {
		return nil, err
	}

	r.Config.EntryPolicy = domain.EntryPolicy(entryPolicy)
	if len(r.Warnings) == 0 {
		r.Warnings = nil
	}
	return &r, nil
}

// scanResults scans multiple rows into a slice of BacktestResult.
func scanResults(rows pgx.Rows) ([]*domain.BacktestResult, error) {
	var results []*domain.BacktestResult

	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest result row: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest result rows: %w", err)
	}

	return results, nil
}
