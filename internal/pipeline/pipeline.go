// Package pipeline wires the full campaign: backtests across every
// configured (instrument, strategy) combination, report generation, and
// output files.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/observability"
	"intraday-backtest-lab/internal/orchestrator"
	"intraday-backtest-lab/internal/reporting"
	"intraday-backtest-lab/internal/storage"
)

// Output file names written into the output directory.
const (
	ReportMarkdownFile = "report.md"
	RunsCSVFile        = "runs.csv"
	ReportHTMLFile     = "index.html"
)

// Pipeline runs the backtest campaign and renders the report files.
type Pipeline struct {
	orch      *orchestrator.Orchestrator
	reportGen *reporting.Generator
	outputDir string
	clock     func() time.Time
}

// Options contains configuration for creating a Pipeline.
type Options struct {
	// Required stores
	InstrumentStore  storage.InstrumentStore
	PriceBarStore    storage.PriceBarStore
	TradeStore       storage.TradeStore
	ResultStore      storage.ResultStore
	EquityCurveStore storage.EquityCurveStore

	// Campaign configuration
	StrategyConfigs []domain.StrategyConfig
	RunConfig       domain.RunConfig

	// Options
	OutputDir string
	Workers   int
	Verbose   bool
}

// New creates a new Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		orch: orchestrator.New(orchestrator.Options{
			InstrumentStore:  opts.InstrumentStore,
			PriceBarStore:    opts.PriceBarStore,
			TradeStore:       opts.TradeStore,
			ResultStore:      opts.ResultStore,
			EquityCurveStore: opts.EquityCurveStore,
			StrategyConfigs:  opts.StrategyConfigs,
			RunConfig:        opts.RunConfig,
			Workers:          opts.Workers,
			Verbose:          opts.Verbose,
		}),
		reportGen: reporting.NewGenerator(opts.InstrumentStore, opts.ResultStore, opts.TradeStore),
		outputDir: opts.OutputDir,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	p.reportGen = p.reportGen.WithClock(clock)
	return p
}

// Result contains campaign counters and the paths of the written files.
// CampaignID identifies this execution of the pipeline; run IDs inside
// the stored results stay deterministic.
type Result struct {
	CampaignID string
	Campaign   *orchestrator.RunResult
	Report     *reporting.Report
	Files      []string
}

// Run executes the campaign and writes output files:
//   - report.md (Markdown report)
//   - runs.csv (per-run rows)
//   - index.html (standalone HTML report)
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, err
	}

	// 1. Run the backtest campaign
	campaign, err := p.orch.Run(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Generate the report from the stores
	report, err := p.reportGen.Generate(ctx)
	if err != nil {
		return nil, err
	}

	// 3. Write report.md
	reportPath := filepath.Join(p.outputDir, ReportMarkdownFile)
	if err := os.WriteFile(reportPath, []byte(reporting.RenderMarkdown(report)), 0644); err != nil {
		return nil, err
	}

	// 4. Write runs.csv
	csvPath := filepath.Join(p.outputDir, RunsCSVFile)
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(report.Runs)), 0644); err != nil {
		return nil, err
	}

	// 5. Write index.html
	html, err := reporting.RenderHTML(report)
	if err != nil {
		return nil, err
	}
	htmlPath := filepath.Join(p.outputDir, ReportHTMLFile)
	if err := os.WriteFile(htmlPath, []byte(html), 0644); err != nil {
		return nil, err
	}

	observability.RecordReportGenerated()
	observability.DefaultMetrics.LastSuccessfulPipeline.Set(float64(p.clock().Unix()))

	return &Result{
		CampaignID: uuid.NewString(),
		Campaign:   campaign,
		Report:     report,
		Files:      []string{reportPath, csvPath, htmlPath},
	}, nil
}
