// Package metrics derives summary statistics from a finalized equity
// curve and trade log. Everything here is pure: inputs are never
// mutated, and the same inputs always produce the same metrics.
package metrics

import (
	"math"

	"intraday-backtest-lab/internal/domain"
)

// millisecond count of one 365-day year, used for return annualization
const msPerYear = 365 * 24 * 60 * 60 * 1000

// Compute calculates all metrics for one run.
//
// Edge cases produce explicit markers rather than silent zeros: the
// Sharpe-like ratio is nil when the return standard deviation is zero or
// fewer than two per-bar returns exist, and the win rate is defined as 0
// (not NaN) when there are no closed trades.
func Compute(cfg domain.RunConfig, curve []domain.EquityPoint, trades []domain.Trade) domain.Metrics {
	m := domain.Metrics{
		TotalReturn: totalReturn(cfg.InitialEquity, curve),
		MaxDrawdown: maxDrawdown(curve),
		SharpeRatio: sharpeRatio(curve, cfg.BarIntervalMs),
		TradeCount:  len(trades),
	}

	wins := 0
	sum := 0.0
	for _, t := range trades {
		sum += t.RealizedPnL
		if t.RealizedPnL > 0 {
			wins++
		}
		if t.RealizedPnL > m.LargestWin {
			m.LargestWin = t.RealizedPnL
		}
		if t.RealizedPnL < m.LargestLoss {
			m.LargestLoss = t.RealizedPnL
		}
	}
	if len(trades) > 0 {
		m.WinRate = float64(wins) / float64(len(trades))
		m.AvgTradePnL = sum / float64(len(trades))
	}

	return m
}

// totalReturn is final equity over initial equity minus one. An empty
// curve means nothing was simulated: return 0.
func totalReturn(initialEquity float64, curve []domain.EquityPoint) float64 {
	if len(curve) == 0 || initialEquity <= 0 {
		return 0
	}
	return curve[len(curve)-1].Equity/initialEquity - 1
}

// maxDrawdown is the worst peak-to-trough decline along the curve,
// expressed as a positive fraction of the peak.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpeRatio is the mean per-bar equity return over its sample standard
// deviation, scaled by the square root of the bars-per-year implied by
// the bar interval. Nil marks the undefined cases.
func sharpeRatio(curve []domain.EquityPoint, barIntervalMs int64) *float64 {
	if barIntervalMs <= 0 {
		return nil
	}

	var returns []float64
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			// Equity at or below zero has no meaningful return base.
			return nil
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return nil
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	varSum := 0.0
	for _, r := range returns {
		d := r - mean
		varSum += d * d
	}
	stddev := math.Sqrt(varSum / float64(len(returns)-1))
	if stddev == 0 {
		return nil
	}

	barsPerYear := float64(msPerYear) / float64(barIntervalMs)
	sharpe := mean / stddev * math.Sqrt(barsPerYear)
	return &sharpe
}
