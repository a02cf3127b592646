package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/marketdata"
	"intraday-backtest-lab/internal/observability"
	"intraday-backtest-lab/internal/storage"
	chstore "intraday-backtest-lab/internal/storage/clickhouse"
	pgstore "intraday-backtest-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	mode := flag.String("mode", "csv", "Ingestion mode: csv or stream")
	instrumentID := flag.String("instrument", "", "Instrument ID (csv mode, required)")
	csvPath := flag.String("csv", "", "CSV file of bars (csv mode, required)")
	wsEndpoint := flag.String("ws-endpoint", "", "Bar stream WebSocket endpoint (stream mode)")
	instruments := flag.String("instruments", "", "Comma-separated instrument IDs to subscribe (stream mode)")

	sessionOpen := flag.String("session-open", "", "Trading session open, HH:MM (empty keeps all bars)")
	sessionClose := flag.String("session-close", "", "Trading session close, HH:MM")
	sessionTZ := flag.String("session-tz", "UTC", "Trading session time zone")

	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (required)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (registers instruments when set)")

	flushSize := flag.Int("flush-size", 100, "Bars buffered per instrument before flushing (stream mode)")
	flushInterval := flag.Duration("flush-interval", 30*time.Second, "Max time between flushes (stream mode)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags)

	if *clickhouseDSN == "" {
		logger.Fatal("--clickhouse-dsn is required")
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
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

	// ClickHouse bar store
	conn, err := chstore.NewConn(ctx, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("connect to clickhouse: %v", err)
	}
	defer conn.Close()
	barStore := chstore.NewPriceBarStore(conn)

	// Optional instrument registration store
	var instrumentStore storage.InstrumentStore
	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		instrumentStore = pgstore.NewInstrumentStore(pool)
	}

	// Optional session filter
	session, err := buildSession(*sessionOpen, *sessionClose, *sessionTZ)
	if err != nil {
		logger.Fatalf("session window: %v", err)
	}

	switch *mode {
	case "csv":
		err = runCSV(ctx, logger, barStore, instrumentStore, session, *instrumentID, *csvPath)
	case "stream":
		err = runStream(ctx, logger, barStore, instrumentStore, session,
			*wsEndpoint, splitList(*instruments), *flushSize, *flushInterval)
	default:
		logger.Fatalf("Unknown mode: %s", *mode)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Ingestion failed: %v", err)
	}
	logger.Println("Ingestion complete")
}

// runCSV loads one CSV file of bars into the bar store.
func runCSV(ctx context.Context, logger *log.Logger, barStore storage.PriceBarStore, instrumentStore storage.InstrumentStore, session *marketdata.Session, instrumentID, csvPath string) error {
	if instrumentID == "" {
		return errors.New("--instrument is required in csv mode")
	}
	if csvPath == "" {
		return errors.New("--csv is required in csv mode")
	}

	bars, err := marketdata.LoadBarsFile(csvPath)
	if err != nil {
		observability.RecordBarRejected("parse")
		return fmt.Errorf("load %s: %w", csvPath, err)
	}

	if session != nil {
		kept := session.Filter(bars)
		logger.Printf("Session filter kept %d of %d bars", len(kept), len(bars))
		bars = kept
	}
	if len(bars) == 0 {
		return errors.New("no bars to ingest")
	}

	if err := registerInstrument(ctx, instrumentStore, instrumentID, bars); err != nil {
		return err
	}

	if err := barStore.InsertBulk(ctx, instrumentID, bars); err != nil {
		return fmt.Errorf("store bars for %s: %w", instrumentID, err)
	}
	observability.RecordBarsIngested(len(bars))
	logger.Printf("Ingested %d bars for %s", len(bars), instrumentID)
	return nil
}

// runStream subscribes to a bar stream and flushes buffered bars per
// instrument. Runs until the context is cancelled.
func runStream(ctx context.Context, logger *log.Logger, barStore storage.PriceBarStore, instrumentStore storage.InstrumentStore, session *marketdata.Session, endpoint string, instruments []string, flushSize int, flushInterval time.Duration) error {
	if endpoint == "" {
		return errors.New("--ws-endpoint is required in stream mode")
	}
	if len(instruments) == 0 {
		return errors.New("--instruments is required in stream mode")
	}

	client, err := marketdata.DialStream(ctx, endpoint, instruments, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer client.Close()

	logger.Printf("Streaming bars for %v from %s", instruments, endpoint)

	buffers := make(map[string][]domain.PriceBar)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		for id, bars := range buffers {
			if len(bars) == 0 {
				continue
			}
			if err := barStore.InsertBulk(ctx, id, bars); err != nil {
				if errors.Is(err, storage.ErrDuplicateKey) {
					observability.RecordBarRejected("duplicate")
					logger.Printf("Dropped %d duplicate bars for %s", len(bars), id)
				} else {
					logger.Printf("Flush %s failed: %v", id, err)
					continue // retry on next flush
				}
			} else {
				observability.RecordBarsIngested(len(bars))
				logger.Printf("Flushed %d bars for %s", len(bars), id)
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
				return errors.New("stream closed")
			}
			observability.RecordStreamUpdate()
			if session != nil && !session.Contains(update.Bar.TimestampMs) {
				observability.RecordBarRejected("session")
				continue
			}
			buffers[update.InstrumentID] = append(buffers[update.InstrumentID], update.Bar)
			if len(buffers[update.InstrumentID]) >= flushSize {
				flush()
			}
		}
	}
}

// registerInstrument inserts the instrument row if a postgres store is
// configured. An existing row is left untouched.
func registerInstrument(ctx context.Context, store storage.InstrumentStore, instrumentID string, bars []domain.PriceBar) error {
	if store == nil {
		return nil
	}

	ins := &domain.Instrument{
		InstrumentID:  instrumentID,
		Symbol:        instrumentID,
		LotSize:       1e-8,
		BarIntervalMs: inferBarInterval(bars),
	}
	if err := store.Insert(ctx, ins); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("register instrument %s: %w", instrumentID, err)
	}
	return nil
}

// inferBarInterval returns the spacing of the first two bars.
func inferBarInterval(bars []domain.PriceBar) int64 {
	if len(bars) < 2 {
		return domain.BarInterval5Min
	}
	return bars[1].TimestampMs - bars[0].TimestampMs
}

// buildSession parses the optional session window flags.
func buildSession(open, close, tz string) (*marketdata.Session, error) {
	if open == "" && close == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return marketdata.NewSession(open, close, loc)
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
