package reporting

import (
	"fmt"
	"html/template"
	"strings"
)

// htmlReport is kept deliberately plain: a static page with one table per
// section, viewable straight from disk.
const htmlReport = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Backtest Report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: right; }
th { background: #f0f0f0; }
td.id { text-align: left; font-family: monospace; }
</style>
</head>
<body>
<h1>Backtest Report</h1>
<p>Generated: {{.GeneratedAt.Format "2006-01-02T15:04:05Z07:00"}}</p>
<p>Instruments: {{.InstrumentCount}} | Strategies: {{.StrategyCount}} | Runs: {{.DataSummary.TotalRuns}} | Trades: {{.DataSummary.TotalTrades}}</p>

<h2>Run Results</h2>
<table>
<tr><th>Run</th><th>Instrument</th><th>Strategy</th><th>Return</th><th>MaxDD</th><th>WinRate</th><th>Trades</th><th>Sharpe</th><th>Insolvent</th></tr>
{{range .Runs}}<tr><td class="id">{{shortID .RunID}}</td><td class="id">{{.InstrumentID}}</td><td class="id">{{.StrategyID}}</td><td>{{pct .TotalReturn}}</td><td>{{pct .MaxDrawdown}}</td><td>{{pct .WinRate}}</td><td>{{.TradeCount}}</td><td>{{sharpe .SharpeRatio}}</td><td>{{yesno .Insolvent}}</td></tr>
{{end}}</table>

<h2>Strategy Comparison</h2>
<table>
<tr><th>Strategy</th><th>Runs</th><th>Trades</th><th>MeanReturn</th><th>MedianReturn</th><th>MeanMaxDD</th><th>WinningRuns</th><th>InsolventRuns</th></tr>
{{range .StrategyComparison}}<tr><td class="id">{{.StrategyID}}</td><td>{{.Runs}}</td><td>{{.TotalTrades}}</td><td>{{pct .MeanReturn}}</td><td>{{pct .MedianReturn}}</td><td>{{pct .MeanDrawdown}}</td><td>{{.WinningRuns}}</td><td>{{.InsolventRuns}}</td></tr>
{{end}}</table>

{{if .Warnings}}<h2>Warnings</h2>
<ul>
{{range .Warnings}}<li>{{.InstrumentID}} / {{.StrategyID}} (run {{shortID .RunID}}): {{join .Warnings}}</li>
{{end}}</ul>
{{end}}</body>
</html>
`

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"shortID": shortRunID,
	"sharpe":  formatSharpe,
	"yesno":   formatBool,
	"pct":     func(v float64) string { return fmt.Sprintf("%.2f%%", v*100) },
	"join":    func(ws []string) string { return strings.Join(ws, ", ") },
}).Parse(htmlReport))

// RenderHTML renders report as a standalone HTML page.
func RenderHTML(r *Report) (string, error) {
	var sb strings.Builder
	if err := htmlTemplate.Execute(&sb, r); err != nil {
		return "", fmt.Errorf("render html report: %w", err)
	}
	return sb.String(), nil
}
