package domain

// PriceBar represents one fixed-interval OHLCV record for an instrument.
// Bars are immutable once produced by the data collaborator; a sequence
// must be strictly increasing in TimestampMs (gaps allowed, duplicates not).
type PriceBar struct {
	TimestampMs int64   // bar open time, Unix milliseconds
	Open        float64 // first traded price in the interval
	High        float64 // highest traded price in the interval
	Low         float64 // lowest traded price in the interval
	Close       float64 // last traded price in the interval
	Volume      float64 // traded volume in the interval
}

// Supported bar intervals (in milliseconds)
const (
	BarInterval1Min  = int64(60_000)
	BarInterval5Min  = int64(300_000)
	BarInterval1Hour = int64(3_600_000)
)
