package verification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"intraday-backtest-lab/internal/backtest"
	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage/memory"
)

type fixture struct {
	bars    *memory.PriceBarStore
	trades  *memory.TradeStore
	results *memory.ResultStore
	curves  *memory.EquityCurveStore
	configs []domain.StrategyConfig
}

func newFixture() *fixture {
	window := 10
	return &fixture{
		bars:    memory.NewPriceBarStore(),
		trades:  memory.NewTradeStore(),
		results: memory.NewResultStore(),
		curves:  memory.NewEquityCurveStore(),
		configs: []domain.StrategyConfig{
			{StrategyType: domain.StrategyTypeBreakout, ChannelWindow: &window},
		},
	}
}

func (f *fixture) verifier(t *testing.T) *RunVerifier {
	t.Helper()
	v, err := NewRunVerifier(RunVerifierOptions{
		ResultStore:      f.results,
		PriceBarStore:    f.bars,
		TradeStore:       f.trades,
		EquityCurveStore: f.curves,
		StrategyConfigs:  f.configs,
	})
	if err != nil {
		t.Fatalf("NewRunVerifier failed: %v", err)
	}
	return v
}

func risingBars(n int) []domain.PriceBar {
	bars := make([]domain.PriceBar, n)
	for i := range bars {
		price := float64(100 + i)
		bars[i] = domain.PriceBar{
			TimestampMs: 1_000_000 + int64(i)*domain.BarInterval5Min,
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			Volume:      1000,
		}
	}
	return bars
}

// seedRun backtests instrumentID against the breakout config and persists
// the outcome, optionally tampered first.
func seedRun(t *testing.T, f *fixture, instrumentID string, tamper func(*domain.BacktestResult)) *domain.BacktestResult {
	t.Helper()
	ctx := context.Background()

	bars := risingBars(50)
	if err := f.bars.InsertBulk(ctx, instrumentID, bars); err != nil {
		t.Fatalf("Insert bars failed: %v", err)
	}

	res, err := backtest.NewEngine().Run(instrumentID, bars, f.configs[0], domain.DefaultRunConfig())
	if err != nil {
		t.Fatalf("Engine run failed: %v", err)
	}

	if tamper != nil {
		tamper(res)
	}

	if err := f.results.Insert(ctx, res); err != nil {
		t.Fatalf("Insert result failed: %v", err)
	}
	if err := f.trades.InsertBulk(ctx, res.Trades); err != nil {
		t.Fatalf("Insert trades failed: %v", err)
	}
	if err := f.curves.InsertBulk(ctx, res.RunID, res.EquityCurve); err != nil {
		t.Fatalf("Insert curve failed: %v", err)
	}

	return res
}

func TestVerifyRun_Match(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stored := seedRun(t, f, "BTC-USD", nil)

	result, err := f.verifier(t).VerifyRun(ctx, stored.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if !result.Match {
		t.Errorf("Expected match, got divergences: %+v", result.Divergences)
	}
	if result.StoredReturn != result.ReplayedReturn {
		t.Errorf("Expected equal returns, got %.6f vs %.6f", result.StoredReturn, result.ReplayedReturn)
	}
}

func TestVerifyRun_DetectsTamperedMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stored := seedRun(t, f, "BTC-USD", func(r *domain.BacktestResult) {
		r.Metrics.TotalReturn += 0.5
	})

	result, err := f.verifier(t).VerifyRun(ctx, stored.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if result.Match {
		t.Fatal("Expected divergence for tampered total return")
	}
	if !hasDivergence(result.Divergences, "Metrics.TotalReturn") {
		t.Errorf("Expected Metrics.TotalReturn divergence, got: %+v", result.Divergences)
	}
}

func TestVerifyRun_DetectsTamperedTrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stored := seedRun(t, f, "BTC-USD", func(r *domain.BacktestResult) {
		r.Trades[0].ExitPrice += 1
	})

	result, err := f.verifier(t).VerifyRun(ctx, stored.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if result.Match {
		t.Fatal("Expected divergence for tampered trade")
	}
	if !hasDivergence(result.Divergences, "ExitPrice") {
		t.Errorf("Expected trade ExitPrice divergence, got: %+v", result.Divergences)
	}
}

func TestVerifyRun_DetectsTamperedCurve(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stored := seedRun(t, f, "BTC-USD", func(r *domain.BacktestResult) {
		r.EquityCurve[len(r.EquityCurve)-1].Equity += 100
	})

	result, err := f.verifier(t).VerifyRun(ctx, stored.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if result.Match {
		t.Fatal("Expected divergence for tampered equity curve")
	}
	if !hasDivergence(result.Divergences, "EquityCurve") {
		t.Errorf("Expected equity curve divergence, got: %+v", result.Divergences)
	}
}

func TestVerifyRun_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.verifier(t).VerifyRun(ctx, "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestVerifyRun_UnknownStrategy(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stored := seedRun(t, f, "BTC-USD", nil)

	f.configs = nil
	_, err := f.verifier(t).VerifyRun(ctx, stored.RunID)
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("Expected ErrUnknownStrategy, got %v", err)
	}
}

// Stored runs carry the parameterized strategy ID, not the bare strategy
// type. The verifier must resolve configs under that same key.
func TestVerifyRun_ResolvesParameterizedStrategyID(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stored := seedRun(t, f, "BTC-USD", nil)

	if stored.StrategyID == domain.StrategyTypeBreakout {
		t.Fatalf("Expected parameterized strategy ID, got bare type %q", stored.StrategyID)
	}

	result, err := f.verifier(t).VerifyRun(ctx, stored.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}
	if !result.Match {
		t.Errorf("Expected match, got divergences: %+v", result.Divergences)
	}
}

// Trades from other runs over the same instrument and strategy must not
// pollute the comparison.
func TestVerifyRun_IgnoresTradesFromOtherRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stored := seedRun(t, f, "BTC-USD", nil)

	if len(stored.Trades) == 0 {
		t.Fatal("Expected seeded run to produce trades")
	}

	foreign := stored.Trades[0]
	foreign.TradeID = "other-trade"
	foreign.RunID = "other-run"
	foreign.RealizedPnL += 42
	if err := f.trades.InsertBulk(ctx, []domain.Trade{foreign}); err != nil {
		t.Fatalf("Insert foreign trade failed: %v", err)
	}

	result, err := f.verifier(t).VerifyRun(ctx, stored.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}
	if !result.Match {
		t.Errorf("Expected match despite foreign trade, got divergences: %+v", result.Divergences)
	}
}

func TestVerifyAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seedRun(t, f, "BTC-USD", nil)
	seedRun(t, f, "QQQ", func(r *domain.BacktestResult) {
		r.Metrics.WinRate = 0.123
	})

	report, err := f.verifier(t).VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}

	if report.TotalRuns != 2 {
		t.Errorf("Expected 2 runs, got %d", report.TotalRuns)
	}
	if report.MatchedRuns != 1 {
		t.Errorf("Expected 1 matched run, got %d", report.MatchedRuns)
	}
	if report.DivergentRuns != 1 {
		t.Errorf("Expected 1 divergent run, got %d", report.DivergentRuns)
	}
	if len(report.Results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(report.Results))
	}
}

func hasDivergence(divergences []FieldDivergence, field string) bool {
	for _, d := range divergences {
		if strings.Contains(d.Field, field) {
			return true
		}
	}
	return false
}
