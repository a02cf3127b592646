package domain

// Metrics summarizes a finalized equity curve and trade log.
type Metrics struct {
	TotalReturn float64 // final equity / initial equity - 1
	MaxDrawdown float64 // worst peak-to-trough decline, fraction of the peak
	WinRate     float64 // winning trades / closed trades, 0 with no trades

	TradeCount   int
	AvgTradePnL  float64
	LargestWin   float64
	LargestLoss  float64

	// SharpeRatio is mean per-bar return over its standard deviation,
	// annualized by the bar interval. Nil when the standard deviation is
	// zero or fewer than two returns exist (undefined, not zero).
	SharpeRatio *float64
}

// Well-known result warnings
const (
	WarningInsolvency = "INSOLVENCY" // sizing hit zero/negative equity, trading halted
)

// BacktestResult aggregates one instrument run. Owned solely by the run
// that produced it; read-only afterwards.
type BacktestResult struct {
	RunID        string // deterministic hash of (instrument, strategy, config window)
	InstrumentID string
	StrategyID   string

	Config RunConfig

	EquityCurve []EquityPoint // one point per warmed-up bar, timestamp ASC
	Trades      []Trade       // closed trades in entry order
	Metrics     Metrics

	// Insolvent marks a run whose trading halted early; the equity curve
	// stays flat at the last valid equity from InsolventAtMs onward.
	Insolvent     bool
	InsolventAtMs int64
	Warnings      []string
}
