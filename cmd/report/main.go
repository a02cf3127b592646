package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"intraday-backtest-lab/internal/reporting"
	pgstore "intraday-backtest-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (required)")
	format := flag.String("format", "markdown", "Output format: markdown, csv, html, or all")
	outputDir := flag.String("output-dir", "", "Write files here instead of stdout (required for --format all)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[report] ", log.LstdFlags)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	generator := reporting.NewGenerator(
		pgstore.NewInstrumentStore(pool),
		pgstore.NewResultStore(pool),
		pgstore.NewTradeStore(pool),
	)

	report, err := generator.Generate(ctx)
	if err != nil {
		logger.Fatalf("generate report: %v", err)
	}

	html := func() string {
		s, err := reporting.RenderHTML(report)
		if err != nil {
			logger.Fatalf("render html: %v", err)
		}
		return s
	}

	switch *format {
	case "markdown":
		emit(logger, *outputDir, "report.md", reporting.RenderMarkdown(report))
	case "csv":
		emit(logger, *outputDir, "runs.csv", reporting.RenderCSV(report.Runs))
	case "html":
		emit(logger, *outputDir, "index.html", html())
	case "all":
		if *outputDir == "" {
			logger.Fatal("--output-dir is required with --format all")
		}
		emit(logger, *outputDir, "report.md", reporting.RenderMarkdown(report))
		emit(logger, *outputDir, "runs.csv", reporting.RenderCSV(report.Runs))
		emit(logger, *outputDir, "index.html", html())
	default:
		logger.Fatalf("Unknown format: %s. Must be markdown, csv, html, or all", *format)
	}
}

// emit writes content to outputDir/name, or to stdout when no directory
// is given.
func emit(logger *log.Logger, outputDir, name, content string) {
	if outputDir == "" {
		fmt.Print(content)
		return
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		logger.Fatalf("create %s: %v", outputDir, err)
	}
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		logger.Fatalf("write %s: %v", path, err)
	}
	logger.Printf("Wrote %s", path)
}
