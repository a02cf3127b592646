package strategy

import "intraday-backtest-lab/internal/domain"

// Strategy turns a bar sequence into a desired position state per bar.
//
// Signals evaluates bar i using only bars at or before i: indicators are
// computed over explicit trailing windows, so dropping bars after i never
// changes the signal at i.
type Strategy interface {
	// ID returns the strategy identifier including parameters.
	ID() string

	// Warmup returns the index of the first bar with a defined signal.
	// Earlier indexes are FLAT by construction.
	Warmup() int

	// Signals returns the desired position state after each bar closes,
	// aligned index-for-index with bars.
	Signals(bars []domain.PriceBar) []domain.PositionState
}
