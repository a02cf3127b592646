package domain

// Instrument identifies one tradable series configured for backtesting.
type Instrument struct {
	InstrumentID  string  // stable identifier, e.g. "QQQ" or "BTC-USD"
	Symbol        string  // provider symbol
	LotSize       float64 // minimum tradable unit
	BarIntervalMs int64   // native bar resolution
}
