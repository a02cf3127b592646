// Package marketdata loads, normalizes and streams OHLCV price bars.
// Everything downstream assumes bars sorted by timestamp with no
// duplicates; this package is where that assumption is established.
package marketdata

import (
	"sort"

	"intraday-backtest-lab/internal/domain"
)

// SortBars orders bars by timestamp ASC in place.
func SortBars(bars []domain.PriceBar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].TimestampMs < bars[j].TimestampMs
	})
}

// Normalize sorts bars by timestamp and validates the result. Duplicate
// timestamps remain an error: two bars for the same interval means the
// feed is broken, not reorderable.
func Normalize(bars []domain.PriceBar) ([]domain.PriceBar, error) {
	SortBars(bars)
	if err := domain.ValidateBars(bars); err != nil {
		return nil, err
	}
	return bars, nil
}
