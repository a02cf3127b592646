package domain

// EquityPoint is one point of the equity curve. The curve holds exactly
// one point per bar with a warmed-up signal, in timestamp order.
// Equity moves only on trade close unless mark-to-market is enabled.
type EquityPoint struct {
	TimestampMs int64
	Equity      float64
}
