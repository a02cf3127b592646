package backtest

import (
	"fmt"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/idhash"
	"intraday-backtest-lab/internal/metrics"
	"intraday-backtest-lab/internal/simulation"
	"intraday-backtest-lab/internal/strategy"
)

// Engine runs a single instrument/strategy backtest end to end:
// input validation, signal generation, trade simulation, metrics.
type Engine struct{}

// NewEngine creates a backtest engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Run executes one backtest over the given bar sequence. Bars must be
// strictly increasing in timestamp. Insolvency is not an error: the
// result carries a warning and a flat-tailed equity curve instead.
func (e *Engine) Run(instrumentID string, bars []domain.PriceBar, stratCfg domain.StrategyConfig, runCfg domain.RunConfig) (*domain.BacktestResult, error) {
	if err := runCfg.Validate(); err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}
	if err := domain.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("bars for %s: %w", instrumentID, err)
	}

	strat, err := strategy.FromConfig(stratCfg)
	if err != nil {
		return nil, fmt.Errorf("strategy config: %w", err)
	}

	signals := strat.Signals(bars)

	out, err := simulation.Run(simulation.Input{
		InstrumentID: instrumentID,
		StrategyID:   strat.ID(),
		Bars:         bars,
		Signals:      signals,
		Warmup:       strat.Warmup(),
		Config:       runCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("simulate %s/%s: %w", instrumentID, strat.ID(), err)
	}

	m := metrics.Compute(runCfg, out.EquityCurve, out.Trades)

	runID := idhash.ComputeRunID(
		instrumentID,
		strat.ID(),
		bars[0].TimestampMs,
		bars[len(bars)-1].TimestampMs,
		len(bars),
	)
	for i := range out.Trades {
		out.Trades[i].RunID = runID
	}

	res := &domain.BacktestResult{
		RunID:         runID,
		InstrumentID:  instrumentID,
		StrategyID:    strat.ID(),
		Config:        runCfg,
		EquityCurve:   out.EquityCurve,
		Trades:        out.Trades,
		Metrics:       m,
		Insolvent:     out.Insolvent,
		InsolventAtMs: out.InsolventAtMs,
	}
	if out.Insolvent {
		res.Warnings = append(res.Warnings, domain.WarningInsolvency)
	}
	return res, nil
}
