package reporting

import (
	"context"
	"sort"
	"time"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

// Generator produces reports from stored results.
type Generator struct {
	instrumentStore storage.InstrumentStore
	resultStore     storage.ResultStore
	tradeStore      storage.TradeStore
	now             func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	instrumentStore storage.InstrumentStore,
	resultStore storage.ResultStore,
	tradeStore storage.TradeStore,
) *Generator {
	return &Generator{
		instrumentStore: instrumentStore,
		resultStore:     resultStore,
		tradeStore:      tradeStore,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete report from all stored results.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	results, err := g.resultStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	dataSummary, err := g.generateDataSummary(ctx, results)
	if err != nil {
		return nil, err
	}

	runs := generateRunRows(results)
	comparison := generateStrategyComparison(results)
	warnings := generateWarnings(results)

	// Count unique instruments and strategies across runs
	instrumentSet := make(map[string]struct{})
	strategySet := make(map[string]struct{})
	for _, r := range results {
		instrumentSet[r.InstrumentID] = struct{}{}
		strategySet[r.StrategyID] = struct{}{}
	}

	return &Report{
		GeneratedAt:        g.now(),
		InstrumentCount:    len(instrumentSet),
		StrategyCount:      len(strategySet),
		DataSummary:        *dataSummary,
		Runs:               runs,
		StrategyComparison: comparison,
		Warnings:           warnings,
	}, nil
}

// generateDataSummary computes the data summary from instruments, results
// and the trades behind them.
func (g *Generator) generateDataSummary(ctx context.Context, results []*domain.BacktestResult) (*DataSummary, error) {
	instruments, err := g.instrumentStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	totalTrades := 0
	for _, r := range results {
		totalTrades += r.Metrics.TradeCount
	}

	// Date range spans trade entries and exits across every
	// (instrument, strategy) pair that produced a run.
	type pair struct {
		InstrumentID string
		StrategyID   string
	}
	seen := make(map[pair]struct{})

	var dateRangeStart, dateRangeEnd int64
	for _, r := range results {
		p := pair{InstrumentID: r.InstrumentID, StrategyID: r.StrategyID}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}

		trades, err := g.tradeStore.GetByInstrumentStrategy(ctx, p.InstrumentID, p.StrategyID)
		if err != nil {
			return nil, err
		}
		for _, t := range trades {
			if dateRangeStart == 0 || t.EntryTimestampMs < dateRangeStart {
				dateRangeStart = t.EntryTimestampMs
			}
			if t.ExitTimestampMs > dateRangeEnd {
				dateRangeEnd = t.ExitTimestampMs
			}
		}
	}

	return &DataSummary{
		TotalInstruments: len(instruments),
		TotalRuns:        len(results),
		TotalTrades:      totalTrades,
		DateRangeStartMs: dateRangeStart,
		DateRangeEndMs:   dateRangeEnd,
	}, nil
}

// generateRunRows builds sorted per-run rows.
func generateRunRows(results []*domain.BacktestResult) []RunRow {
	rows := make([]RunRow, len(results))
	for i, r := range results {
		rows[i] = RunRow{
			RunID:        r.RunID,
			InstrumentID: r.InstrumentID,
			StrategyID:   r.StrategyID,
			TotalReturn:  r.Metrics.TotalReturn,
			MaxDrawdown:  r.Metrics.MaxDrawdown,
			WinRate:      r.Metrics.WinRate,
			TradeCount:   r.Metrics.TradeCount,
			AvgTradePnL:  r.Metrics.AvgTradePnL,
			SharpeRatio:  r.Metrics.SharpeRatio,
			Insolvent:    r.Insolvent,
		}
	}

	sortRunRows(rows)
	return rows
}

// generateStrategyComparison aggregates every strategy across instruments.
func generateStrategyComparison(results []*domain.BacktestResult) []StrategyComparisonRow {
	groups := make(map[string][]*domain.BacktestResult)
	for _, r := range results {
		groups[r.StrategyID] = append(groups[r.StrategyID], r)
	}

	var rows []StrategyComparisonRow
	for strategyID, group := range groups {
		row := StrategyComparisonRow{
			StrategyID: strategyID,
			Runs:       len(group),
		}

		returns := make([]float64, 0, len(group))
		var sumReturn, sumDrawdown float64
		for _, r := range group {
			row.TotalTrades += r.Metrics.TradeCount
			sumReturn += r.Metrics.TotalReturn
			sumDrawdown += r.Metrics.MaxDrawdown
			returns = append(returns, r.Metrics.TotalReturn)
			if r.Metrics.TotalReturn > 0 {
				row.WinningRuns++
			}
			if r.Insolvent {
				row.InsolventRuns++
			}
		}
		row.MeanReturn = sumReturn / float64(len(group))
		row.MeanDrawdown = sumDrawdown / float64(len(group))
		row.MedianReturn = median(returns)

		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].StrategyID < rows[j].StrategyID
	})

	return rows
}

// generateWarnings lists runs that finished with warnings, sorted like the
// run results table.
func generateWarnings(results []*domain.BacktestResult) []RunWarningRow {
	var rows []RunWarningRow
	for _, r := range results {
		if len(r.Warnings) == 0 {
			continue
		}
		warnings := make([]string, len(r.Warnings))
		copy(warnings, r.Warnings)
		rows = append(rows, RunWarningRow{
			RunID:        r.RunID,
			InstrumentID: r.InstrumentID,
			StrategyID:   r.StrategyID,
			Warnings:     warnings,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].InstrumentID != rows[j].InstrumentID {
			return rows[i].InstrumentID < rows[j].InstrumentID
		}
		if rows[i].StrategyID != rows[j].StrategyID {
			return rows[i].StrategyID < rows[j].StrategyID
		}
		return rows[i].RunID < rows[j].RunID
	})

	return rows
}

// sortRunRows sorts rows by (instrument_id, strategy_id, run_id).
func sortRunRows(rows []RunRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].InstrumentID != rows[j].InstrumentID {
			return rows[i].InstrumentID < rows[j].InstrumentID
		}
		if rows[i].StrategyID != rows[j].StrategyID {
			return rows[i].StrategyID < rows[j].StrategyID
		}
		return rows[i].RunID < rows[j].RunID
	})
}

// median returns the middle value of vs, averaging the two central values
// for an even count. Returns 0 for an empty slice.
func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
