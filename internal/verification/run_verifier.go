package verification

import (
	"context"
	"errors"
	"fmt"

	"intraday-backtest-lab/internal/backtest"
	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
	"intraday-backtest-lab/internal/strategy"
)

var (
	// ErrRunNotFound is returned when the run ID doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrUnknownStrategy is returned when no config is registered for a
	// stored run's strategy ID.
	ErrUnknownStrategy = errors.New("no strategy config registered for stored run")
)

// RunVerifier implements Verifier by re-executing runs with the engine.
type RunVerifier struct {
	resultStore      storage.ResultStore
	priceBarStore    storage.PriceBarStore
	tradeStore       storage.TradeStore
	equityCurveStore storage.EquityCurveStore

	// strategyConfigs maps the full parameterized strategy ID (the ID
	// persisted with each run) to its configuration. The result store
	// only keeps that ID, so every strategy that produced a stored run
	// must be registered here.
	strategyConfigs map[string]domain.StrategyConfig

	engine *backtest.Engine
}

// RunVerifierOptions contains configuration for creating a RunVerifier.
type RunVerifierOptions struct {
	ResultStore      storage.ResultStore
	PriceBarStore    storage.PriceBarStore
	TradeStore       storage.TradeStore
	EquityCurveStore storage.EquityCurveStore

	// StrategyConfigs are the configurations replay may need. Registry
	// keys are derived from each config's built strategy, so they match
	// the parameterized IDs stored with runs.
	StrategyConfigs []domain.StrategyConfig
}

// NewRunVerifier creates a new RunVerifier. Every supplied strategy
// config must build.
func NewRunVerifier(opts RunVerifierOptions) (*RunVerifier, error) {
	configs := make(map[string]domain.StrategyConfig, len(opts.StrategyConfigs))
	for _, cfg := range opts.StrategyConfigs {
		strat, err := strategy.FromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("register strategy config %s: %w", cfg.StrategyType, err)
		}
		configs[strat.ID()] = cfg
	}

	return &RunVerifier{
		resultStore:      opts.ResultStore,
		priceBarStore:    opts.PriceBarStore,
		tradeStore:       opts.TradeStore,
		equityCurveStore: opts.EquityCurveStore,
		strategyConfigs:  configs,
		engine:           backtest.NewEngine(),
	}, nil
}

// VerifyRun verifies a single run by replaying the backtest.
func (v *RunVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationResult, error) {
	// 1. Load stored result
	stored, err := v.resultStore.GetByRunID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	// 2. Replay the run with the same bars and configs
	replayed, err := v.replayRun(ctx, stored)
	if err != nil {
		return nil, err
	}

	// 3. Load the stored trade log and equity curve. Trades are keyed by
	// run so other runs over the same instrument/strategy never leak in.
	storedTrades, err := v.tradeStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	storedCurve, err := v.equityCurveStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	// 4. Compare
	divergences := CompareResults(stored, replayed, storedTrades, storedCurve)

	return &VerificationResult{
		RunID:          runID,
		Match:          len(divergences) == 0,
		Divergences:    divergences,
		StoredReturn:   stored.Metrics.TotalReturn,
		ReplayedReturn: replayed.Metrics.TotalReturn,
	}, nil
}

// VerifyAll verifies all stored runs.
func (v *RunVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	results, err := v.resultStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		TotalRuns: len(results),
		Results:   make([]VerificationResult, 0, len(results)),
	}

	for _, stored := range results {
		result, err := v.VerifyRun(ctx, stored.RunID)
		if err != nil {
			// Record error as divergence
			report.Results = append(report.Results, VerificationResult{
				RunID:        stored.RunID,
				Match:        false,
				StoredReturn: stored.Metrics.TotalReturn,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentRuns++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}

	return report, nil
}

// replayRun re-executes the backtest with the stored run's parameters.
func (v *RunVerifier) replayRun(ctx context.Context, stored *domain.BacktestResult) (*domain.BacktestResult, error) {
	stratCfg, ok := v.strategyConfigs[stored.StrategyID]
	if !ok {
		return nil, ErrUnknownStrategy
	}

	bars, err := v.priceBarStore.GetByInstrumentID(ctx, stored.InstrumentID)
	if err != nil {
		return nil, err
	}

	return v.engine.Run(stored.InstrumentID, bars, stratCfg, stored.Config)
}
