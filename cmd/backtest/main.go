package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"intraday-backtest-lab/internal/backtest"
	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/marketdata"
	"intraday-backtest-lab/internal/storage"
	chstore "intraday-backtest-lab/internal/storage/clickhouse"
	pgstore "intraday-backtest-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	instrumentID := flag.String("instrument", "", "Instrument ID to backtest (required)")
	strategyType := flag.String("strategy", "", "Strategy: MEAN_REVERSION, BREAKOUT (required)")
	csvPath := flag.String("csv", "", "Load bars from CSV file instead of ClickHouse")

	// MEAN_REVERSION parameters
	rsiWindow := flag.Int("rsi-window", 14, "RSI window for MEAN_REVERSION")
	bollingerWindow := flag.Int("bollinger-window", 20, "Bollinger window for MEAN_REVERSION")
	bollingerK := flag.Float64("bollinger-k", 2, "Bollinger band width for MEAN_REVERSION")
	oversold := flag.Float64("oversold", 30, "RSI oversold threshold")
	overbought := flag.Float64("overbought", 70, "RSI overbought threshold")
	neutralLow := flag.Float64("neutral-low", 45, "RSI neutral band lower bound")
	neutralHigh := flag.Float64("neutral-high", 55, "RSI neutral band upper bound")

	// BREAKOUT parameters
	channelWindow := flag.Int("channel-window", 20, "Donchian channel window for BREAKOUT")

	// Common strategy parameters
	cooldownBars := flag.Int("cooldown-bars", 0, "Bars to wait after an exit before re-entering")

	// Run config
	initialEquity := flag.Float64("initial-equity", 10000, "Starting equity")
	riskFraction := flag.Float64("risk-fraction", 0.1, "Fraction of equity per entry, (0, 1]")
	entryPolicy := flag.String("entry-policy", "CLOSE", "Fill policy: CLOSE or NEXT_OPEN")
	lotSize := flag.Float64("lot-size", 1e-8, "Minimum tradable unit")
	barIntervalMs := flag.Int64("bar-interval-ms", domain.BarInterval5Min, "Bar resolution (ms)")
	slippageBps := flag.Float64("slippage-bps", 0, "Slippage applied to every fill (bps)")
	commission := flag.Float64("commission-per-side", 0, "Fixed cost per trade side")
	markToMarket := flag.Bool("mark-to-market", false, "Value open positions at every bar close")
	atrWindow := flag.Int("atr-window", 0, "ATR window for protective exits (0 disables)")
	stopATR := flag.Float64("stop-atr", 0, "Stop distance in ATR multiples (0 disables)")
	targetATR := flag.Float64("target-atr", 0, "Target distance in ATR multiples (0 disables)")
	maxLeverage := flag.Float64("max-leverage", 0, "Cap entry size at equity*leverage/price units (0 = uncapped)")

	// Storage
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (results, trades)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (bars, equity curves)")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")
	persistResult := flag.Bool("persist", false, "Persist result, trades and equity curve to storage")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	// Validate required flags
	if *instrumentID == "" {
		logger.Fatal("--instrument is required")
	}
	if *strategyType == "" {
		logger.Fatal("--strategy is required")
	}

	*strategyType = strings.ToUpper(*strategyType)
	if *strategyType != domain.StrategyTypeMeanReversion && *strategyType != domain.StrategyTypeBreakout {
		logger.Fatalf("Invalid strategy: %s. Must be MEAN_REVERSION or BREAKOUT", *strategyType)
	}
	if *csvPath == "" && *clickhouseDSN == "" {
		logger.Fatal("either --csv or --clickhouse-dsn is required for bar data")
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

	// Optional ClickHouse connection, for bar loading and curve persistence
	var chConn *chstore.Conn
	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer conn.Close()
		chConn = conn
	}

	// Load bars
	var bars []domain.PriceBar
	var err error
	if *csvPath != "" {
		bars, err = marketdata.LoadBarsFile(*csvPath)
		if err != nil {
			logger.Fatalf("load bars from %s: %v", *csvPath, err)
		}
	} else {
		bars, err = chstore.NewPriceBarStore(chConn).GetByInstrumentID(ctx, *instrumentID)
		if err != nil {
			logger.Fatalf("load bars for %s: %v", *instrumentID, err)
		}
	}

	// Build configs
	strategyConfig := buildStrategyConfig(*strategyType,
		*rsiWindow, *bollingerWindow, *bollingerK, *oversold, *overbought,
		*neutralLow, *neutralHigh, *channelWindow, *cooldownBars)

	runConfig := domain.RunConfig{
		InitialEquity:     *initialEquity,
		RiskFraction:      *riskFraction,
		EntryPolicy:       domain.EntryPolicy(strings.ToUpper(*entryPolicy)),
		LotSize:           *lotSize,
		BarIntervalMs:     *barIntervalMs,
		SlippageBps:       *slippageBps,
		CommissionPerSide: *commission,
		MarkToMarket:      *markToMarket,
		ATRWindow:         *atrWindow,
		StopATRMult:       *stopATR,
		TargetATRMult:     *targetATR,
		MaxLeverage:       *maxLeverage,
	}

	// Run backtest
	logger.Printf("Running backtest: instrument=%s strategy=%s bars=%d",
		*instrumentID, *strategyType, len(bars))

	result, err := backtest.NewEngine().Run(*instrumentID, bars, strategyConfig, runConfig)
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}

	// Persist
	if *persistResult {
		if *postgresDSN == "" || *clickhouseDSN == "" {
			logger.Fatal("--persist requires both --postgres-dsn and --clickhouse-dsn")
		}

		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		if err := persist(ctx, result, pgstore.NewResultStore(pool), pgstore.NewTradeStore(pool), chstore.NewEquityCurveStore(chConn)); err != nil {
			logger.Fatalf("persist result: %v", err)
		}
		logger.Printf("Persisted run %s", result.RunID)
	}

	// Output result
	if *outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
	} else {
		printResult(result)
	}
}

// buildStrategyConfig creates a StrategyConfig from CLI flags.
func buildStrategyConfig(
	strategyType string,
	rsiWindow, bollingerWindow int,
	bollingerK, oversold, overbought, neutralLow, neutralHigh float64,
	channelWindow, cooldownBars int,
) domain.StrategyConfig {
	cfg := domain.StrategyConfig{
		StrategyType: strategyType,
		CooldownBars: &cooldownBars,
	}

	switch strategyType {
	case domain.StrategyTypeMeanReversion:
		cfg.RSIWindow = &rsiWindow
		cfg.BollingerWindow = &bollingerWindow
		cfg.BollingerK = &bollingerK
		cfg.Oversold = &oversold
		cfg.Overbought = &overbought
		cfg.NeutralLow = &neutralLow
		cfg.NeutralHigh = &neutralHigh
	case domain.StrategyTypeBreakout:
		cfg.ChannelWindow = &channelWindow
	}

	return cfg
}

// persist stores the run summary, trade log and equity curve.
func persist(ctx context.Context, r *domain.BacktestResult, results storage.ResultStore, trades storage.TradeStore, curves storage.EquityCurveStore) error {
	if err := results.Insert(ctx, r); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if len(r.Trades) > 0 {
		if err := trades.InsertBulk(ctx, r.Trades); err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}
	}
	if len(r.EquityCurve) > 0 {
		if err := curves.InsertBulk(ctx, r.RunID, r.EquityCurve); err != nil {
			return fmt.Errorf("insert equity curve: %w", err)
		}
	}
	return nil
}

// printResult outputs a human-readable run summary.
func printResult(r *domain.BacktestResult) {
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Run ID:             %s\n", r.RunID)
	fmt.Printf("Instrument:         %s\n", r.InstrumentID)
	fmt.Printf("Strategy:           %s\n", r.StrategyID)
	fmt.Println()

	fmt.Println("Metrics:")
	fmt.Printf("  Total Return:     %.2f%%\n", r.Metrics.TotalReturn*100)
	fmt.Printf("  Max Drawdown:     %.2f%%\n", r.Metrics.MaxDrawdown*100)
	fmt.Printf("  Win Rate:         %.2f%%\n", r.Metrics.WinRate*100)
	fmt.Printf("  Trades:           %d\n", r.Metrics.TradeCount)
	fmt.Printf("  Avg Trade PnL:    %.4f\n", r.Metrics.AvgTradePnL)
	fmt.Printf("  Largest Win:      %.4f\n", r.Metrics.LargestWin)
	fmt.Printf("  Largest Loss:     %.4f\n", r.Metrics.LargestLoss)
	if r.Metrics.SharpeRatio != nil {
		fmt.Printf("  Sharpe Ratio:     %.4f\n", *r.Metrics.SharpeRatio)
	} else {
		fmt.Printf("  Sharpe Ratio:     n/a\n")
	}
	fmt.Println()

	if len(r.EquityCurve) > 0 {
		first := r.EquityCurve[0]
		last := r.EquityCurve[len(r.EquityCurve)-1]
		fmt.Println("Equity Curve:")
		fmt.Printf("  Points:           %d\n", len(r.EquityCurve))
		fmt.Printf("  Start:            %s  %.2f\n", time.UnixMilli(first.TimestampMs).Format(time.RFC3339), first.Equity)
		fmt.Printf("  End:              %s  %.2f\n", time.UnixMilli(last.TimestampMs).Format(time.RFC3339), last.Equity)
		fmt.Println()
	}

	if r.Insolvent {
		fmt.Printf("Insolvent at:       %s\n", time.UnixMilli(r.InsolventAtMs).Format(time.RFC3339))
	}
	for _, w := range r.Warnings {
		fmt.Printf("Warning:            %s\n", w)
	}
}
