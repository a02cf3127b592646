package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Instruments: %d | Strategies: %d\n\n", r.InstrumentCount, r.StrategyCount))

	// Data Summary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Instruments | %d |\n", r.DataSummary.TotalInstruments))
	sb.WriteString(fmt.Sprintf("| Total Runs | %d |\n", r.DataSummary.TotalRuns))
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", r.DataSummary.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Date Range Start (ms) | %d |\n", r.DataSummary.DateRangeStartMs))
	sb.WriteString(fmt.Sprintf("| Date Range End (ms) | %d |\n", r.DataSummary.DateRangeEndMs))
	sb.WriteString("\n")

	// Run Results
	sb.WriteString("## Run Results\n\n")
	if len(r.Runs) > 0 {
		sb.WriteString("| Run | Instrument | Strategy | Return | MaxDD | WinRate | Trades | AvgPnL | Sharpe | Insolvent |\n")
		sb.WriteString("|-----|------------|----------|--------|-------|---------|--------|--------|--------|----------|\n")
		for _, run := range r.Runs {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.4f | %.4f | %.4f | %d | %.4f | %s | %s |\n",
				shortRunID(run.RunID), run.InstrumentID, run.StrategyID,
				run.TotalReturn, run.MaxDrawdown, run.WinRate,
				run.TradeCount, run.AvgTradePnL,
				formatSharpe(run.SharpeRatio), formatBool(run.Insolvent)))
		}
	} else {
		sb.WriteString("No run results available.\n")
	}
	sb.WriteString("\n")

	// Strategy Comparison
	sb.WriteString("## Strategy Comparison\n\n")
	if len(r.StrategyComparison) > 0 {
		sb.WriteString("| Strategy | Runs | Trades | MeanReturn | MedianReturn | MeanMaxDD | WinningRuns | InsolventRuns |\n")
		sb.WriteString("|----------|------|--------|------------|--------------|-----------|-------------|---------------|\n")
		for _, c := range r.StrategyComparison {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f | %.4f | %.4f | %d | %d |\n",
				c.StrategyID, c.Runs, c.TotalTrades,
				c.MeanReturn, c.MedianReturn, c.MeanDrawdown,
				c.WinningRuns, c.InsolventRuns))
		}
	} else {
		sb.WriteString("No strategy comparison available.\n")
	}
	sb.WriteString("\n")

	// Warnings
	sb.WriteString("## Warnings\n\n")
	if len(r.Warnings) > 0 {
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s / %s (run %s): %s\n",
				w.InstrumentID, w.StrategyID, shortRunID(w.RunID),
				strings.Join(w.Warnings, ", ")))
		}
	} else {
		sb.WriteString("No warnings.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// shortRunID abbreviates a 64-char run ID for table display.
func shortRunID(runID string) string {
	if len(runID) <= 12 {
		return runID
	}
	return runID[:12]
}

func formatSharpe(sharpe *float64) string {
	if sharpe == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *sharpe)
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
