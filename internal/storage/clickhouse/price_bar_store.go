package clickhouse

import (
	"context"
	"fmt"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

// PriceBarStore implements storage.PriceBarStore using ClickHouse.
type PriceBarStore struct {
	conn *Conn
}

// NewPriceBarStore creates a new PriceBarStore.
func NewPriceBarStore(conn *Conn) *PriceBarStore {
	return &PriceBarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

// InsertBulk adds bars for an instrument. Fails entire batch on
// duplicate (instrument_id, timestamp_ms).
func (s *PriceBarStore) InsertBulk(ctx context.Context, instrumentID string, bars []domain.PriceBar) error {
	if instrumentID == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{}, len(bars))
	for _, b := range bars {
		if _, exists := seen[b.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		seen[b.TimestampMs] = struct{}{}
	}

	// MergeTree does not enforce uniqueness; check against existing rows
	for _, b := range bars {
		exists, err := s.exists(ctx, instrumentID, b.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_bars (
			instrument_id, timestamp_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			instrumentID, uint64(b.TimestampMs),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByInstrumentID retrieves all bars for an instrument, ordered by timestamp ASC.
func (s *PriceBarStore) GetByInstrumentID(ctx context.Context, instrumentID string) ([]domain.PriceBar, error) {
	query := `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM price_bars
		WHERE instrument_id = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("query by instrument id: %w", err)
	}
	defer rows.Close()

	return scanPriceBars(rows)
}

// GetByTimeRange retrieves bars for an instrument within [start, end] (inclusive).
func (s *PriceBarStore) GetByTimeRange(ctx context.Context, instrumentID string, start, end int64) ([]domain.PriceBar, error) {
	query := `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM price_bars
		WHERE instrument_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, instrumentID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceBars(rows)
}

// exists checks if a bar with the given key exists.
func (s *PriceBarStore) exists(ctx context.Context, instrumentID string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM price_bars
		WHERE instrument_id = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, instrumentID, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanPriceBars scans multiple rows.
func scanPriceBars(rows chRows) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar

	for rows.Next() {
		var b domain.PriceBar
		var timestampMs uint64

		err := rows.Scan(&timestampMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
		if err != nil {
			return nil, fmt.Errorf("scan price bar row: %w", err)
		}

		b.TimestampMs = int64(timestampMs)
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price bar rows: %w", err)
	}

	return bars, nil
}
