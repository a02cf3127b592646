// Package indicator provides stateless rolling-window computations over
// ordered price sequences. Every function is deterministic, side-effect
// free, and returns a slice aligned index-for-index with its input.
//
// Values inside the warm-up prefix are explicitly undefined (Defined ==
// false), never zero or NaN, so an unwarmed window can not be mistaken
// for a real signal.
package indicator

import "math"

// Value is one point of an indicator series. V is meaningful only when
// Defined is true.
type Value struct {
	V       float64
	Defined bool
}

// SMA computes the simple moving average of closes over the trailing
// window. Index i is defined for i >= window-1 and averages
// closes[i-window+1 .. i].
func SMA(closes []float64, window int) []Value {
	out := make([]Value, len(closes))
	if window <= 0 {
		return out
	}
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= window-1 {
			out[i] = Value{V: sum / float64(window), Defined: true}
		}
	}
	return out
}

// Bollinger computes the moving mean and the mean ± k·stddev bands over
// the trailing window. Standard deviation is population (ddof 0).
// Index i is defined for i >= window-1.
func Bollinger(closes []float64, window int, k float64) (mid, upper, lower []Value) {
	n := len(closes)
	mid = make([]Value, n)
	upper = make([]Value, n)
	lower = make([]Value, n)
	if window <= 0 {
		return mid, upper, lower
	}
	for i := window - 1; i < n; i++ {
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += closes[j]
		}
		mean := sum / float64(window)

		varSum := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := closes[j] - mean
			varSum += d * d
		}
		stdev := math.Sqrt(varSum / float64(window))

		mid[i] = Value{V: mean, Defined: true}
		upper[i] = Value{V: mean + k*stdev, Defined: true}
		lower[i] = Value{V: mean - k*stdev, Defined: true}
	}
	return mid, upper, lower
}

// RSI computes the relative-strength oscillator from the ratio of the
// average upward close-to-close move to the average downward move over
// the trailing window, scaled to [0,100]. Index i is defined for
// i >= window (the first window bars lack enough deltas).
//
// When the average downward move is zero the oscillator saturates at
// 100; a fully flat window reads 50.
func RSI(closes []float64, window int) []Value {
	out := make([]Value, len(closes))
	if window <= 0 {
		return out
	}
	for i := window; i < len(closes); i++ {
		var up, down float64
		for j := i - window + 1; j <= i; j++ {
			delta := closes[j] - closes[j-1]
			if delta > 0 {
				up += delta
			} else {
				down -= delta
			}
		}
		var rsi float64
		switch {
		case down == 0 && up == 0:
			rsi = 50
		case down == 0:
			rsi = 100
		default:
			rs := up / down
			rsi = 100 - 100/(1+rs)
		}
		out[i] = Value{V: rsi, Defined: true}
	}
	return out
}

// ATR computes the average true range as a simple moving average of the
// true range over the trailing window. True range at i is the largest of
// high-low, |high-prevClose| and |low-prevClose|; the first bar has no
// previous close and uses high-low alone. Index i is defined for
// i >= window-1.
func ATR(highs, lows, closes []float64, window int) []Value {
	n := len(highs)
	out := make([]Value, n)
	if window <= 0 || len(lows) != n || len(closes) != n {
		return out
	}
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		r := highs[i] - lows[i]
		if i > 0 {
			prev := closes[i-1]
			r = math.Max(r, math.Abs(highs[i]-prev))
			r = math.Max(r, math.Abs(lows[i]-prev))
		}
		tr[i] = r
	}
	sum := 0.0
	for i, r := range tr {
		sum += r
		if i >= window {
			sum -= tr[i-window]
		}
		if i >= window-1 {
			out[i] = Value{V: sum / float64(window), Defined: true}
		}
	}
	return out
}

// Donchian computes the channel high (maximum high) and channel low
// (minimum low) over the window bars strictly before index i, so a
// breakout comparison at i never sees bar i itself. Index i is defined
// for i >= window.
func Donchian(highs, lows []float64, window int) (chHigh, chLow []Value) {
	n := len(highs)
	chHigh = make([]Value, n)
	chLow = make([]Value, n)
	if window <= 0 || len(lows) != n {
		return chHigh, chLow
	}
	for i := window; i < n; i++ {
		hi := math.Inf(-1)
		lo := math.Inf(1)
		for j := i - window; j < i; j++ {
			if highs[j] > hi {
				hi = highs[j]
			}
			if lows[j] < lo {
				lo = lows[j]
			}
		}
		chHigh[i] = Value{V: hi, Defined: true}
		chLow[i] = Value{V: lo, Defined: true}
	}
	return chHigh, chLow
}
