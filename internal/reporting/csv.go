package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders run rows as CSV string.
func RenderCSV(runs []RunRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("run_id,instrument_id,strategy_id,total_return,max_drawdown,win_rate,")
	sb.WriteString("trade_count,avg_trade_pnl,sharpe_ratio,insolvent\n")

	// Rows; sharpe_ratio is empty when undefined
	for _, r := range runs {
		sharpe := ""
		if r.SharpeRatio != nil {
			sharpe = fmt.Sprintf("%.6f", *r.SharpeRatio)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%.6f,%.6f,%.6f,%d,%.6f,%s,%t\n",
			r.RunID,
			r.InstrumentID,
			r.StrategyID,
			r.TotalReturn,
			r.MaxDrawdown,
			r.WinRate,
			r.TradeCount,
			r.AvgTradePnL,
			sharpe,
			r.Insolvent,
		))
	}

	return sb.String()
}
