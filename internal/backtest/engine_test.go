package backtest

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/strategy"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func makeBars(closes []float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = domain.PriceBar{
			TimestampMs: 1_000_000 + int64(i)*domain.BarInterval5Min,
			Open:        c,
			High:        c,
			Low:         c,
			Close:       c,
			Volume:      1,
		}
	}
	return bars
}

// triangleCloses produces a period-20 triangle wave between 95 and 105
// centered on 100: up to the peak, down through the trough, back up.
func triangleCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		switch m := i % 20; {
		case m <= 5:
			out[i] = 100 + float64(m)
		case m <= 15:
			out[i] = 105 - float64(m-5)
		default:
			out[i] = 95 + float64(m-15)
		}
	}
	return out
}

func TestMeanReversionOnOscillatingSeries(t *testing.T) {
	bars := makeBars(triangleCloses(100))
	stratCfg := domain.StrategyConfig{
		StrategyType: domain.StrategyTypeMeanReversion,
		RSIWindow:    intPtr(14),
		BollingerK:   floatPtr(1.5),
	}

	res, err := NewEngine().Run("OSC", bars, stratCfg, domain.DefaultRunConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// warmup is max(rsi 14, bb 20-1) = 19
	if got, want := len(res.EquityCurve), 100-19; got != want {
		t.Fatalf("equity curve length = %d, want %d", got, want)
	}
	if len(res.Trades) < 2 {
		t.Fatalf("expected multiple round trips, got %d trades", len(res.Trades))
	}

	foundTroughLong := false
	for _, tr := range res.Trades {
		if tr.Direction == 1 && tr.EntryPrice < 96 {
			foundTroughLong = true
		}
	}
	if !foundTroughLong {
		t.Error("expected at least one long entry near the 95 trough")
	}

	final := res.EquityCurve[len(res.EquityCurve)-1].Equity
	if final < 9_000 || final > 11_000 {
		t.Errorf("final equity = %v, want within [9000, 11000]", final)
	}
	if res.Insolvent || len(res.Warnings) != 0 {
		t.Errorf("unexpected insolvency: %v %v", res.Insolvent, res.Warnings)
	}
	if len(res.RunID) != 64 {
		t.Errorf("run ID = %q, want 64 hex chars", res.RunID)
	}
}

func TestBreakoutOnRisingSeries(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bars := makeBars(closes)
	stratCfg := domain.StrategyConfig{
		StrategyType:  domain.StrategyTypeBreakout,
		ChannelWindow: intPtr(10),
	}

	res, err := NewEngine().Run("TREND", bars, stratCfg, domain.DefaultRunConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// One entry at the first bar clearing the prior 10-bar high, held
	// until the terminal liquidation.
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Direction != 1 {
		t.Errorf("direction = %d, want long", tr.Direction)
	}
	if tr.EntryTimestampMs != bars[10].TimestampMs {
		t.Errorf("entry at %d, want bar 10 at %d", tr.EntryTimestampMs, bars[10].TimestampMs)
	}
	if tr.ExitReason != domain.ExitReasonFinalBar {
		t.Errorf("exit reason = %q, want %q", tr.ExitReason, domain.ExitReasonFinalBar)
	}
	if tr.ExitTimestampMs != bars[49].TimestampMs {
		t.Errorf("exit at %d, want final bar at %d", tr.ExitTimestampMs, bars[49].TimestampMs)
	}
	if tr.RealizedPnL <= 0 {
		t.Errorf("realized pnl = %v, want positive", tr.RealizedPnL)
	}
	if tr.RunID != res.RunID {
		t.Errorf("trade run ID = %q, want %q", tr.RunID, res.RunID)
	}
	if res.Metrics.TotalReturn <= 0 {
		t.Errorf("total return = %v, want positive", res.Metrics.TotalReturn)
	}
}

func TestInsolvencyHaltsRunWithWarning(t *testing.T) {
	// Entry size 1.25 at close 80 with the whole equity committed; the
	// exit at close 0 realizes exactly -100 and zeroes the account.
	bars := makeBars([]float64{100, 100, 100, 80, 50, 0, 0, 0, 50, 100})
	stratCfg := domain.StrategyConfig{
		StrategyType:    domain.StrategyTypeMeanReversion,
		RSIWindow:       intPtr(2),
		BollingerWindow: intPtr(3),
		BollingerK:      floatPtr(1),
	}
	cfg := domain.DefaultRunConfig()
	cfg.InitialEquity = 100
	cfg.RiskFraction = 1.0

	res, err := NewEngine().Run("DOOM", bars, stratCfg, cfg)
	if err != nil {
		t.Fatalf("insolvency must not fail the run: %v", err)
	}

	if !res.Insolvent {
		t.Fatal("expected insolvent run")
	}
	if res.InsolventAtMs != bars[7].TimestampMs {
		t.Errorf("insolvent at %d, want bar 7 at %d", res.InsolventAtMs, bars[7].TimestampMs)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != domain.WarningInsolvency {
		t.Errorf("warnings = %v, want [%s]", res.Warnings, domain.WarningInsolvency)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1 (no trading after the halt)", len(res.Trades))
	}

	// Curve: warmup at bar 2, equity 100 until the closing bar, then
	// flat at zero from the halt onward.
	want := []float64{100, 100, 100, 100, 100, 0, 0, 0}
	if len(res.EquityCurve) != len(want) {
		t.Fatalf("equity curve length = %d, want %d", len(res.EquityCurve), len(want))
	}
	for i, p := range res.EquityCurve {
		if math.Abs(p.Equity-want[i]) > 1e-9 {
			t.Errorf("curve[%d] = %v, want %v", i, p.Equity, want[i])
		}
	}
}

func TestEquityConservation(t *testing.T) {
	bars := makeBars(triangleCloses(100))
	stratCfg := domain.StrategyConfig{
		StrategyType: domain.StrategyTypeMeanReversion,
		BollingerK:   floatPtr(1.5),
	}
	cfg := domain.DefaultRunConfig()

	res, err := NewEngine().Run("OSC", bars, stratCfg, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sum := cfg.InitialEquity
	for _, tr := range res.Trades {
		sum += tr.RealizedPnL
	}
	final := res.EquityCurve[len(res.EquityCurve)-1].Equity
	if math.Abs(sum-final) > 1e-9 {
		t.Errorf("initial + sum(pnl) = %v, final equity = %v", sum, final)
	}
}

func TestEngineDeterminism(t *testing.T) {
	bars := makeBars(triangleCloses(100))
	stratCfg := domain.StrategyConfig{
		StrategyType: domain.StrategyTypeMeanReversion,
		BollingerK:   floatPtr(1.5),
	}

	eng := NewEngine()
	a, err := eng.Run("OSC", bars, stratCfg, domain.DefaultRunConfig())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := eng.Run("OSC", bars, stratCfg, domain.DefaultRunConfig())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs must produce identical results")
	}
}

func TestEngineInputValidation(t *testing.T) {
	good := makeBars([]float64{100, 101, 102})
	dup := makeBars([]float64{100, 101, 102})
	dup[2].TimestampMs = dup[1].TimestampMs
	shuffled := makeBars([]float64{100, 101, 102})
	shuffled[0].TimestampMs, shuffled[2].TimestampMs = shuffled[2].TimestampMs, shuffled[0].TimestampMs

	badRisk := domain.DefaultRunConfig()
	badRisk.RiskFraction = 0

	meanRev := domain.StrategyConfig{StrategyType: domain.StrategyTypeMeanReversion}

	cases := []struct {
		name    string
		bars    []domain.PriceBar
		strat   domain.StrategyConfig
		cfg     domain.RunConfig
		wantErr error
	}{
		{"empty bars", nil, meanRev, domain.DefaultRunConfig(), domain.ErrEmptyBarSequence},
		{"duplicate timestamp", dup, meanRev, domain.DefaultRunConfig(), domain.ErrDuplicateBarStamp},
		{"non-monotonic", shuffled, meanRev, domain.DefaultRunConfig(), domain.ErrNonMonotonicBars},
		{"bad risk fraction", good, meanRev, badRisk, domain.ErrRiskFractionRange},
		{"unknown strategy", good, domain.StrategyConfig{StrategyType: "MOMENTUM"}, domain.DefaultRunConfig(), strategy.ErrUnknownStrategyType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEngine().Run("X", tc.bars, tc.strat, tc.cfg)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
