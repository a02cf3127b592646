// Package main provides a unified service that runs all components together:
// - Ingestion (continuous): WebSocket bar stream
// - Pipeline (scheduled): backtest campaign + report generation
// - HTTP: health, Prometheus metrics, status, latest report files
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/marketdata"
	"intraday-backtest-lab/internal/observability"
	"intraday-backtest-lab/internal/pipeline"
	"intraday-backtest-lab/internal/storage"
	chstore "intraday-backtest-lab/internal/storage/clickhouse"
	"intraday-backtest-lab/internal/storage/memory"
	pgstore "intraday-backtest-lab/internal/storage/postgres"
)

// Server holds all components of the unified service.
type Server struct {
	// Configuration
	wsEndpoint       string
	instruments      []string
	outputDir        string
	pipelineInterval time.Duration
	flushSize        int
	flushInterval    time.Duration

	// Components
	stores *allStores
	pipe   *pipeline.Pipeline
	logger *log.Logger

	// State
	mu              sync.Mutex
	started         time.Time
	lastPipelineRun time.Time
	pipelineRunning bool
	pipelineRuns    int
	barsIngested    int
}

// allStores holds all storage implementations.
type allStores struct {
	instrumentStore  storage.InstrumentStore
	priceBarStore    storage.PriceBarStore
	tradeStore       storage.TradeStore
	resultStore      storage.ResultStore
	equityCurveStore storage.EquityCurveStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("BAR_STREAM_ENDPOINT"), "Bar stream WebSocket endpoint (empty disables ingestion)")
	instruments := flag.String("instruments", "", "Comma-separated instrument IDs to subscribe")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage seeded with synthetic fixtures")
	outputDir := flag.String("output-dir", "output", "Output directory for report files")
	pipelineInterval := flag.Duration("pipeline-interval", 1*time.Hour, "Backtest campaign interval")
	workers := flag.Int("workers", 4, "Parallel instruments per campaign")
	flushSize := flag.Int("flush-size", 100, "Bars buffered per instrument before flushing")
	flushInterval := flag.Duration("flush-interval", 30*time.Second, "Max time between ingestion flushes")
	httpAddr := flag.String("http-addr", ":9090", "HTTP address for health/metrics/status")

	// Run config
	initialEquity := flag.Float64("initial-equity", 10000, "Starting equity")
	riskFraction := flag.Float64("risk-fraction", 0.1, "Fraction of equity per entry, (0, 1]")
	slippageBps := flag.Float64("slippage-bps", 0, "Slippage applied to every fill (bps)")
	commission := flag.Float64("commission-per-side", 0, "Fixed cost per trade side")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	runConfig := domain.DefaultRunConfig()
	runConfig.InitialEquity = *initialEquity
	runConfig.RiskFraction = *riskFraction
	runConfig.SlippageBps = *slippageBps
	runConfig.CommissionPerSide = *commission

	server := &Server{
		wsEndpoint:       *wsEndpoint,
		instruments:      splitList(*instruments),
		outputDir:        *outputDir,
		pipelineInterval: *pipelineInterval,
		flushSize:        *flushSize,
		flushInterval:    *flushInterval,
		stores:           stores,
		pipe: pipeline.New(pipeline.Options{
			InstrumentStore:  stores.instrumentStore,
			PriceBarStore:    stores.priceBarStore,
			TradeStore:       stores.tradeStore,
			ResultStore:      stores.resultStore,
			EquityCurveStore: stores.equityCurveStore,
			StrategyConfigs:  pipeline.DefaultStrategyConfigs(),
			RunConfig:        runConfig,
			OutputDir:        *outputDir,
			Workers:          *workers,
		}),
		logger: logger,
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*httpAddr)

	// Run the unified server
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		memInstruments := memory.NewInstrumentStore()
		memBars := memory.NewPriceBarStore()
		if err := pipeline.LoadFixtures(ctx, memInstruments, memBars); err != nil {
			return nil, nil, fmt.Errorf("load fixtures: %w", err)
		}
		stores := &allStores{
			instrumentStore:  memInstruments,
			priceBarStore:    memBars,
			tradeStore:       memory.NewTradeStore(),
			resultStore:      memory.NewResultStore(),
			equityCurveStore: memory.NewEquityCurveStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// ClickHouse
	conn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	stores := &allStores{
		// PostgreSQL stores (registry + run summaries + trades)
		instrumentStore: pgstore.NewInstrumentStore(pool),
		tradeStore:      pgstore.NewTradeStore(pool),
		resultStore:     pgstore.NewResultStore(pool),

		// ClickHouse stores (time series)
		priceBarStore:    chstore.NewPriceBarStore(conn),
		equityCurveStore: chstore.NewEquityCurveStore(conn),
	}

	cleanup := func() {
		conn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// Run starts the unified server with all components.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting unified server...")

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	errCh := make(chan error, 2)

	// Start ingestion in background when a stream endpoint is configured
	if s.wsEndpoint != "" {
		go func() {
			err := s.runIngestion(ctx)
			if err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("ingestion: %w", err)
			}
		}()
	}

	// Start pipeline scheduler in background
	go func() {
		err := s.runPipelineScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("pipeline scheduler: %w", err)
		}
	}()

	// Advance the uptime counter while the server runs
	go func() {
		const tick = 15 * time.Second
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.DefaultMetrics.UptimeSeconds.Add(tick.Seconds())
			}
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// runIngestion streams bars and flushes buffered batches per instrument.
func (s *Server) runIngestion(ctx context.Context) error {
	if len(s.instruments) == 0 {
		return fmt.Errorf("--instruments is required with --ws-endpoint")
	}

	client, err := marketdata.DialStream(ctx, s.wsEndpoint, s.instruments, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer client.Close()

	s.logger.Printf("Streaming bars for %v from %s", s.instruments, s.wsEndpoint)

	buffers := make(map[string][]domain.PriceBar)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		for id, bars := range buffers {
			if len(bars) == 0 {
				continue
			}
			if err := s.stores.priceBarStore.InsertBulk(ctx, id, bars); err != nil {
				if errors.Is(err, storage.ErrDuplicateKey) {
					observability.RecordBarRejected("duplicate")
				} else {
					s.logger.Printf("Flush %s failed: %v", id, err)
					continue // retry on next flush
				}
			} else {
				observability.RecordBarsIngested(len(bars))
				s.mu.Lock()
				s.barsIngested += len(bars)
				s.mu.Unlock()
			}
			buffers[id] = nil
		}
	}
	defer flush()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			flush()
		case update, ok := <-client.Updates():
			if !ok {
				return fmt.Errorf("stream closed")
			}
			observability.RecordStreamUpdate()
			buffers[update.InstrumentID] = append(buffers[update.InstrumentID], update.Bar)
			if len(buffers[update.InstrumentID]) >= s.flushSize {
				flush()
			}
		}
	}
}

// runPipelineScheduler runs the backtest campaign on schedule.
func (s *Server) runPipelineScheduler(ctx context.Context) error {
	s.logger.Printf("Starting pipeline scheduler (interval: %v)...", s.pipelineInterval)

	// Run immediately on start
	s.runPipeline(ctx)

	ticker := time.NewTicker(s.pipelineInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runPipeline(ctx)
		}
	}
}

// runPipeline executes one campaign and writes the report files.
func (s *Server) runPipeline(ctx context.Context) {
	s.mu.Lock()
	if s.pipelineRunning {
		s.mu.Unlock()
		s.logger.Println("Pipeline already running, skipping...")
		return
	}
	s.pipelineRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pipelineRunning = false
		s.lastPipelineRun = time.Now()
		s.pipelineRuns++
		s.mu.Unlock()
	}()

	s.logger.Println("Running pipeline...")
	start := time.Now()

	result, err := s.pipe.Run(ctx)
	if err != nil {
		s.logger.Printf("Pipeline error: %v", err)
		return
	}

	s.logger.Printf("Pipeline completed in %v: %d instruments, %d runs, %d trades (%d errors)",
		time.Since(start), result.Campaign.InstrumentsProcessed,
		result.Campaign.RunsCompleted, result.Campaign.TradesCreated,
		len(result.Campaign.Errors))
	for _, e := range result.Campaign.Errors {
		s.logger.Printf("  error: %s", e)
	}
}

// startHTTPServer starts the HTTP server for health/metrics/status/reports.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	health := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
	mux.HandleFunc("/health", health)
	mux.HandleFunc("/healthz", health)

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	// Latest report files
	mux.Handle("/reports/", http.StripPrefix("/reports/", http.FileServer(http.Dir(s.outputDir))))

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status          string    `json:"status"`
	Uptime          string    `json:"uptime"`
	LastPipelineRun time.Time `json:"last_pipeline_run,omitempty"`
	PipelineRuns    int       `json:"pipeline_runs"`
	PipelineRunning bool      `json:"pipeline_running"`
	BarsIngested    int       `json:"bars_ingested"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:          "running",
		Uptime:          time.Since(s.started).String(),
		LastPipelineRun: s.lastPipelineRun,
		PipelineRuns:    s.pipelineRuns,
		PipelineRunning: s.pipelineRunning,
		BarsIngested:    s.barsIngested,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
