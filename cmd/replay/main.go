package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"intraday-backtest-lab/internal/pipeline"
	chstore "intraday-backtest-lab/internal/storage/clickhouse"
	pgstore "intraday-backtest-lab/internal/storage/postgres"
	"intraday-backtest-lab/internal/verification"
)

func main() {
	// Parse flags
	runID := flag.String("run-id", "", "Run ID to verify (empty verifies all stored runs)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (required)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (required)")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	if *postgresDSN == "" || *clickhouseDSN == "" {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Create stores
	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	conn, err := chstore.NewConn(ctx, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("connect to clickhouse: %v", err)
	}
	defer conn.Close()

	verifier, err := verification.NewRunVerifier(verification.RunVerifierOptions{
		ResultStore:      pgstore.NewResultStore(pool),
		PriceBarStore:    chstore.NewPriceBarStore(conn),
		TradeStore:       pgstore.NewTradeStore(pool),
		EquityCurveStore: chstore.NewEquityCurveStore(conn),
		StrategyConfigs:  pipeline.DefaultStrategyConfigs(),
	})
	if err != nil {
		logger.Fatalf("build verifier: %v", err)
	}

	if *runID != "" {
		result, err := verifier.VerifyRun(ctx, *runID)
		if err != nil {
			logger.Fatalf("verify run: %v", err)
		}
		printResult(result, *outputJSON)
		if !result.Match {
			os.Exit(1)
		}
		return
	}

	report, err := verifier.VerifyAll(ctx)
	if err != nil {
		logger.Fatalf("verify all: %v", err)
	}
	printReport(report, *outputJSON)
	if report.DivergentRuns > 0 {
		os.Exit(1)
	}
}

func printResult(r *verification.VerificationResult, asJSON bool) {
	if asJSON {
		output, _ := json.MarshalIndent(r, "", "  ")
		fmt.Println(string(output))
		return
	}

	status := "MATCH"
	if !r.Match {
		status = "DIVERGED"
	}
	fmt.Printf("%s  run %s  stored=%.6f replayed=%.6f\n", status, r.RunID, r.StoredReturn, r.ReplayedReturn)
	for _, d := range r.Divergences {
		fmt.Printf("  %s: expected %v, got %v\n", d.Field, d.Expected, d.Actual)
	}
}

func printReport(report *verification.VerificationReport, asJSON bool) {
	if asJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Printf("Verified %d runs: %d matched, %d diverged\n",
		report.TotalRuns, report.MatchedRuns, report.DivergentRuns)
	for _, r := range report.Results {
		if r.Match {
			continue
		}
		printResult(&r, false)
	}
}
