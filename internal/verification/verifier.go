// Package verification re-executes stored backtest runs and checks that
// they reproduce. A run is deterministic: same bars, same configs, same
// result. Any divergence means the stored data and the engine disagree.
package verification

import (
	"context"
	"fmt"
	"math"

	"intraday-backtest-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons. Replay runs the
// identical code path, so divergence beyond rounding noise is a defect.
const FloatTolerance = 1e-9

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single run.
type VerificationResult struct {
	RunID          string            // verified run ID
	Match          bool              // true if all fields match
	Divergences    []FieldDivergence // list of divergent fields
	StoredReturn   float64           // total return from stored result
	ReplayedReturn float64           // total return from replayed run
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalRuns     int                  // total runs verified
	MatchedRuns   int                  // runs that matched exactly
	DivergentRuns int                  // runs with divergences
	Results       []VerificationResult // individual results
}

// Verifier interface for backtest replay verification.
type Verifier interface {
	// VerifyRun verifies a single run by ID. It loads the stored result,
	// re-executes the backtest with the same bars and configs, and
	// compares all fields.
	VerifyRun(ctx context.Context, runID string) (*VerificationResult, error)

	// VerifyAll verifies all stored runs.
	VerifyAll(ctx context.Context) (*VerificationReport, error)
}

// CompareResults compares a stored result (with its separately stored
// trades and equity curve) against a replayed one and returns divergences.
func CompareResults(stored, replayed *domain.BacktestResult, storedTrades []domain.Trade, storedCurve []domain.EquityPoint) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.RunID != replayed.RunID {
		divergences = append(divergences, FieldDivergence{
			Field:    "RunID",
			Expected: stored.RunID,
			Actual:   replayed.RunID,
		})
	}

	if stored.InstrumentID != replayed.InstrumentID {
		divergences = append(divergences, FieldDivergence{
			Field:    "InstrumentID",
			Expected: stored.InstrumentID,
			Actual:   replayed.InstrumentID,
		})
	}

	if stored.StrategyID != replayed.StrategyID {
		divergences = append(divergences, FieldDivergence{
			Field:    "StrategyID",
			Expected: stored.StrategyID,
			Actual:   replayed.StrategyID,
		})
	}

	// Metrics
	if !floatEquals(stored.Metrics.TotalReturn, replayed.Metrics.TotalReturn) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Metrics.TotalReturn",
			Expected: stored.Metrics.TotalReturn,
			Actual:   replayed.Metrics.TotalReturn,
		})
	}

	if !floatEquals(stored.Metrics.MaxDrawdown, replayed.Metrics.MaxDrawdown) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Metrics.MaxDrawdown",
			Expected: stored.Metrics.MaxDrawdown,
			Actual:   replayed.Metrics.MaxDrawdown,
		})
	}

	if !floatEquals(stored.Metrics.WinRate, replayed.Metrics.WinRate) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Metrics.WinRate",
			Expected: stored.Metrics.WinRate,
			Actual:   replayed.Metrics.WinRate,
		})
	}

	if stored.Metrics.TradeCount != replayed.Metrics.TradeCount {
		divergences = append(divergences, FieldDivergence{
			Field:    "Metrics.TradeCount",
			Expected: stored.Metrics.TradeCount,
			Actual:   replayed.Metrics.TradeCount,
		})
	}

	if !floatEquals(stored.Metrics.AvgTradePnL, replayed.Metrics.AvgTradePnL) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Metrics.AvgTradePnL",
			Expected: stored.Metrics.AvgTradePnL,
			Actual:   replayed.Metrics.AvgTradePnL,
		})
	}

	if !floatPtrEquals(stored.Metrics.SharpeRatio, replayed.Metrics.SharpeRatio) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Metrics.SharpeRatio",
			Expected: stored.Metrics.SharpeRatio,
			Actual:   replayed.Metrics.SharpeRatio,
		})
	}

	// Insolvency state
	if stored.Insolvent != replayed.Insolvent {
		divergences = append(divergences, FieldDivergence{
			Field:    "Insolvent",
			Expected: stored.Insolvent,
			Actual:   replayed.Insolvent,
		})
	}

	if stored.InsolventAtMs != replayed.InsolventAtMs {
		divergences = append(divergences, FieldDivergence{
			Field:    "InsolventAtMs",
			Expected: stored.InsolventAtMs,
			Actual:   replayed.InsolventAtMs,
		})
	}

	divergences = append(divergences, compareTrades(storedTrades, replayed.Trades)...)
	divergences = append(divergences, compareCurves(storedCurve, replayed.EquityCurve)...)

	return divergences
}

// compareTrades compares the stored trade log against the replayed one.
// Both sides are ordered by entry timestamp.
func compareTrades(stored, replayed []domain.Trade) []FieldDivergence {
	if len(stored) != len(replayed) {
		return []FieldDivergence{{
			Field:    "Trades.Count",
			Expected: len(stored),
			Actual:   len(replayed),
		}}
	}

	var divergences []FieldDivergence
	for i := range stored {
		s, r := stored[i], replayed[i]
		prefix := fmt.Sprintf("Trades[%d].", i)

		if s.TradeID != r.TradeID {
			divergences = append(divergences, FieldDivergence{Field: prefix + "TradeID", Expected: s.TradeID, Actual: r.TradeID})
		}
		if s.EntryTimestampMs != r.EntryTimestampMs {
			divergences = append(divergences, FieldDivergence{Field: prefix + "EntryTimestampMs", Expected: s.EntryTimestampMs, Actual: r.EntryTimestampMs})
		}
		if !floatEquals(s.EntryPrice, r.EntryPrice) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "EntryPrice", Expected: s.EntryPrice, Actual: r.EntryPrice})
		}
		if s.Direction != r.Direction {
			divergences = append(divergences, FieldDivergence{Field: prefix + "Direction", Expected: s.Direction, Actual: r.Direction})
		}
		if !floatEquals(s.Size, r.Size) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "Size", Expected: s.Size, Actual: r.Size})
		}
		if s.ExitTimestampMs != r.ExitTimestampMs {
			divergences = append(divergences, FieldDivergence{Field: prefix + "ExitTimestampMs", Expected: s.ExitTimestampMs, Actual: r.ExitTimestampMs})
		}
		if !floatEquals(s.ExitPrice, r.ExitPrice) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "ExitPrice", Expected: s.ExitPrice, Actual: r.ExitPrice})
		}
		if s.ExitReason != r.ExitReason {
			divergences = append(divergences, FieldDivergence{Field: prefix + "ExitReason", Expected: s.ExitReason, Actual: r.ExitReason})
		}
		if !floatEquals(s.RealizedPnL, r.RealizedPnL) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "RealizedPnL", Expected: s.RealizedPnL, Actual: r.RealizedPnL})
		}
		if !floatEquals(s.Costs, r.Costs) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "Costs", Expected: s.Costs, Actual: r.Costs})
		}
	}
	return divergences
}

// compareCurves compares the stored equity curve against the replayed one.
func compareCurves(stored, replayed []domain.EquityPoint) []FieldDivergence {
	if len(stored) != len(replayed) {
		return []FieldDivergence{{
			Field:    "EquityCurve.Length",
			Expected: len(stored),
			Actual:   len(replayed),
		}}
	}

	var divergences []FieldDivergence
	for i := range stored {
		if stored[i].TimestampMs != replayed[i].TimestampMs {
			divergences = append(divergences, FieldDivergence{
				Field:    fmt.Sprintf("EquityCurve[%d].TimestampMs", i),
				Expected: stored[i].TimestampMs,
				Actual:   replayed[i].TimestampMs,
			})
			continue
		}
		if !floatEquals(stored[i].Equity, replayed[i].Equity) {
			divergences = append(divergences, FieldDivergence{
				Field:    fmt.Sprintf("EquityCurve[%d].Equity", i),
				Expected: stored[i].Equity,
				Actual:   replayed[i].Equity,
			})
		}
	}
	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

// floatPtrEquals compares two *float64 values within FloatTolerance.
// Returns true if both are nil, or both are non-nil and equal.
func floatPtrEquals(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEquals(*a, *b)
}
