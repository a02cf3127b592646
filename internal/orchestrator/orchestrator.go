// Package orchestrator coordinates backtest campaigns across instruments.
// Flow: load instruments → load bars → run strategies → persist results
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"intraday-backtest-lab/internal/backtest"
	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/observability"
	"intraday-backtest-lab/internal/storage"
)

// Orchestrator runs every (instrument, strategy) combination, parallel
// across instruments, and persists the outcomes. Per-instrument failures
// are collected, not fatal.
type Orchestrator struct {
	// Stores
	instrumentStore  storage.InstrumentStore
	priceBarStore    storage.PriceBarStore
	tradeStore       storage.TradeStore
	resultStore      storage.ResultStore
	equityCurveStore storage.EquityCurveStore

	// Configs
	strategyConfigs []domain.StrategyConfig
	runConfig       domain.RunConfig

	// Options
	engine  *backtest.Engine
	workers int
	verbose bool
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	InstrumentStore  storage.InstrumentStore
	PriceBarStore    storage.PriceBarStore
	TradeStore       storage.TradeStore
	ResultStore      storage.ResultStore
	EquityCurveStore storage.EquityCurveStore

	// Strategy and run configs
	StrategyConfigs []domain.StrategyConfig
	RunConfig       domain.RunConfig

	// Options
	Workers int // parallel instruments, defaults to 4
	Verbose bool
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Orchestrator{
		instrumentStore:  opts.InstrumentStore,
		priceBarStore:    opts.PriceBarStore,
		tradeStore:       opts.TradeStore,
		resultStore:      opts.ResultStore,
		equityCurveStore: opts.EquityCurveStore,
		strategyConfigs:  opts.StrategyConfigs,
		runConfig:        opts.RunConfig,
		engine:           backtest.NewEngine(),
		workers:          workers,
		verbose:          opts.Verbose,
	}
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	InstrumentsProcessed int
	RunsCompleted        int
	TradesCreated        int
	InsolventRuns        int
	Errors               []string
}

// Run executes every configured (instrument, strategy) combination.
// Phases:
//  1. Load instruments
//  2. Backtest each instrument against each strategy, parallel across
//     instruments
//  3. Persist result, trades and equity curve per run
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}

	// Phase 1: Load instruments
	o.log("Phase 1: Loading instruments...")
	instruments, err := o.instrumentStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load instruments) failed: %w", err)
	}
	result.InstrumentsProcessed = len(instruments)
	o.log("  Found %d instruments", len(instruments))

	if len(instruments) == 0 {
		return result, nil
	}

	// Phase 2: Backtests, parallel across instruments
	o.log("Phase 2: Running backtests (%d workers)...", o.workers)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, o.workers)
	)

	for _, ins := range instruments {
		wg.Add(1)
		sem <- struct{}{}
		go func(ins *domain.Instrument) {
			defer wg.Done()
			defer func() { <-sem }()

			runs, trades, insolvent, errs := o.runInstrument(ctx, ins)

			mu.Lock()
			result.RunsCompleted += runs
			result.TradesCreated += trades
			result.InsolventRuns += insolvent
			result.Errors = append(result.Errors, errs...)
			mu.Unlock()
		}(ins)
	}
	wg.Wait()

	// Worker completion order is nondeterministic; keep output stable.
	sort.Strings(result.Errors)

	o.log("Campaign completed: %d instruments, %d runs, %d trades (%d errors)",
		result.InstrumentsProcessed, result.RunsCompleted, result.TradesCreated, len(result.Errors))

	return result, nil
}

// runInstrument backtests one instrument against every strategy config and
// persists each outcome.
func (o *Orchestrator) runInstrument(ctx context.Context, ins *domain.Instrument) (runs, trades, insolvent int, errs []string) {
	bars, err := o.priceBarStore.GetByInstrumentID(ctx, ins.InstrumentID)
	if err != nil {
		return 0, 0, 0, []string{fmt.Sprintf("load bars %s: %v", ins.InstrumentID, err)}
	}

	cfg := o.configFor(ins)

	for _, stratCfg := range o.strategyConfigs {
		start := time.Now()
		res, err := o.engine.Run(ins.InstrumentID, bars, stratCfg, cfg)
		if err != nil {
			observability.RecordRun(stratCfg.StrategyType, "error", time.Since(start).Seconds())
			errs = append(errs, fmt.Sprintf("backtest %s/%s: %v", ins.InstrumentID, stratCfg.StrategyType, err))
			continue
		}
		observability.RecordRun(stratCfg.StrategyType, "ok", time.Since(start).Seconds())

		stored, err := o.persistRun(ctx, res)
		if err != nil {
			errs = append(errs, fmt.Sprintf("persist %s/%s: %v", ins.InstrumentID, res.StrategyID, err))
			continue
		}
		if !stored {
			// Identical run already persisted
			continue
		}

		runs++
		trades += len(res.Trades)
		observability.RecordTradesSimulated(len(res.Trades))
		if res.Insolvent {
			insolvent++
			observability.RecordInsolventRun()
		}
		o.log("  %s/%s: %d trades, return %.4f", ins.InstrumentID, res.StrategyID,
			res.Metrics.TradeCount, res.Metrics.TotalReturn)
	}

	return runs, trades, insolvent, errs
}

// persistRun stores the result summary, trades and equity curve. Returns
// false without error when the run was already stored.
func (o *Orchestrator) persistRun(ctx context.Context, res *domain.BacktestResult) (bool, error) {
	if err := o.resultStore.Insert(ctx, res); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return false, nil
		}
		return false, fmt.Errorf("insert result: %w", err)
	}

	if len(res.Trades) > 0 {
		if err := o.tradeStore.InsertBulk(ctx, res.Trades); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return false, fmt.Errorf("insert trades: %w", err)
		}
	}

	if len(res.EquityCurve) > 0 {
		if err := o.equityCurveStore.InsertBulk(ctx, res.RunID, res.EquityCurve); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return false, fmt.Errorf("insert equity curve: %w", err)
		}
	}

	return true, nil
}

// configFor derives the per-instrument run config: lot size and bar
// interval follow the instrument when it declares them.
func (o *Orchestrator) configFor(ins *domain.Instrument) domain.RunConfig {
	cfg := o.runConfig
	if ins.LotSize > 0 {
		cfg.LotSize = ins.LotSize
	}
	if ins.BarIntervalMs > 0 {
		cfg.BarIntervalMs = ins.BarIntervalMs
	}
	return cfg
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}
