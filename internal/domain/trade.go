package domain

// Trade represents one simulated round trip. A trade is opened on a
// FLAT→LONG/SHORT transition (or the opening half of a direction flip)
// and is immutable once the exit is recorded.
type Trade struct {
	TradeID      string // deterministic hash (instrument|strategy|entry time)
	RunID        string // run that produced this trade
	InstrumentID string
	StrategyID   string

	// Entry
	EntryTimestampMs int64
	EntryPrice       float64 // fill price after flat slippage
	Direction        int     // +1 long, -1 short
	Size             float64 // units, fixed at entry, lot-rounded

	// Exit
	ExitTimestampMs int64
	ExitPrice       float64
	ExitReason      string

	// Outcome
	RealizedPnL float64 // (exit - entry) * size * direction, net of costs
	Costs       float64 // commissions charged on entry and exit; slippage lives in the fill prices
}

// Exit reason codes
const (
	ExitReasonSignal   = "SIGNAL"    // strategy moved to FLAT
	ExitReasonFlip     = "FLIP"      // closing half of a direction flip
	ExitReasonFinalBar = "FINAL_BAR" // terminal liquidation at end of series
	ExitReasonStop     = "STOP"      // protective stop level touched
	ExitReasonTarget   = "TARGET"    // profit target level touched
)
