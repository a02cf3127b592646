package reporting

import "time"

// Report summarizes every stored backtest run.
type Report struct {
	// Metadata
	GeneratedAt     time.Time
	InstrumentCount int
	StrategyCount   int

	// Data Summary
	DataSummary DataSummary

	// Run Results (sorted by instrument_id, strategy_id, run_id)
	Runs []RunRow

	// Per-strategy aggregates across instruments
	StrategyComparison []StrategyComparisonRow

	// Runs whose simulation halted or raised warnings
	Warnings []RunWarningRow
}

// DataSummary describes the data behind the report.
type DataSummary struct {
	TotalInstruments int
	TotalRuns        int
	TotalTrades      int
	DateRangeStartMs int64 // earliest trade entry, Unix ms
	DateRangeEndMs   int64 // latest trade exit, Unix ms
}

// RunRow represents one backtest run in the run results table.
type RunRow struct {
	RunID        string
	InstrumentID string
	StrategyID   string
	TotalReturn  float64
	MaxDrawdown  float64
	WinRate      float64 // trade-level
	TradeCount   int
	AvgTradePnL  float64
	SharpeRatio  *float64 // nil when undefined
	Insolvent    bool
}

// StrategyComparisonRow aggregates one strategy across all instruments.
type StrategyComparisonRow struct {
	StrategyID    string
	Runs          int
	TotalTrades   int
	MeanReturn    float64
	MedianReturn  float64
	MeanDrawdown  float64
	WinningRuns   int // runs with positive total return
	InsolventRuns int
}

// RunWarningRow lists a run that finished with warnings.
type RunWarningRow struct {
	RunID        string
	InstrumentID string
	StrategyID   string
	Warnings     []string
}
