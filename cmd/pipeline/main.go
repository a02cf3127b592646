package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/pipeline"
	"intraday-backtest-lab/internal/storage"
	chstore "intraday-backtest-lab/internal/storage/clickhouse"
	"intraday-backtest-lab/internal/storage/memory"
	pgstore "intraday-backtest-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	outputDir := flag.String("output-dir", "output", "Directory for report files")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useFixtures := flag.Bool("fixtures", false, "Use in-memory storage seeded with synthetic fixtures")
	workers := flag.Int("workers", 4, "Parallel instruments")
	verbose := flag.Bool("verbose", false, "Verbose orchestrator logging")

	// Run config
	initialEquity := flag.Float64("initial-equity", 10000, "Starting equity")
	riskFraction := flag.Float64("risk-fraction", 0.1, "Fraction of equity per entry, (0, 1]")
	slippageBps := flag.Float64("slippage-bps", 0, "Slippage applied to every fill (bps)")
	commission := flag.Float64("commission-per-side", 0, "Fixed cost per trade side")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[pipeline] ", log.LstdFlags)

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
	var (
		instrumentStore  storage.InstrumentStore
		priceBarStore    storage.PriceBarStore
		tradeStore       storage.TradeStore
		resultStore      storage.ResultStore
		equityCurveStore storage.EquityCurveStore
	)

	if *useFixtures {
		memInstruments := memory.NewInstrumentStore()
		memBars := memory.NewPriceBarStore()
		if err := pipeline.LoadFixtures(ctx, memInstruments, memBars); err != nil {
			logger.Fatalf("load fixtures: %v", err)
		}
		instrumentStore = memInstruments
		priceBarStore = memBars
		tradeStore = memory.NewTradeStore()
		resultStore = memory.NewResultStore()
		equityCurveStore = memory.NewEquityCurveStore()
		logger.Println("Using in-memory storage with synthetic fixtures")
	} else {
		if *postgresDSN == "" || *clickhouseDSN == "" {
			logger.Fatal("--postgres-dsn and --clickhouse-dsn are required without --fixtures")
		}

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

		instrumentStore = pgstore.NewInstrumentStore(pool)
		tradeStore = pgstore.NewTradeStore(pool)
		resultStore = pgstore.NewResultStore(pool)
		priceBarStore = chstore.NewPriceBarStore(conn)
		equityCurveStore = chstore.NewEquityCurveStore(conn)
	}

	runConfig := domain.DefaultRunConfig()
	runConfig.InitialEquity = *initialEquity
	runConfig.RiskFraction = *riskFraction
	runConfig.SlippageBps = *slippageBps
	runConfig.CommissionPerSide = *commission

	p := pipeline.New(pipeline.Options{
		InstrumentStore:  instrumentStore,
		PriceBarStore:    priceBarStore,
		TradeStore:       tradeStore,
		ResultStore:      resultStore,
		EquityCurveStore: equityCurveStore,
		StrategyConfigs:  pipeline.DefaultStrategyConfigs(),
		RunConfig:        runConfig,
		OutputDir:        *outputDir,
		Workers:          *workers,
		Verbose:          *verbose,
	})

	result, err := p.Run(ctx)
	if err != nil {
		logger.Fatalf("pipeline failed: %v", err)
	}

	logger.Printf("Campaign: %d instruments, %d runs, %d trades (%d errors)",
		result.Campaign.InstrumentsProcessed, result.Campaign.RunsCompleted,
		result.Campaign.TradesCreated, len(result.Campaign.Errors))
	for _, e := range result.Campaign.Errors {
		logger.Printf("  error: %s", e)
	}
	for _, f := range result.Files {
		logger.Printf("Wrote %s", f)
	}
}
