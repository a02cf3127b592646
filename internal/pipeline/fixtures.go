package pipeline

import (
	"context"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

// Fixture instruments for demonstration runs.
const (
	FixtureOscillating = "SYN-OSC"   // triangle wave around 100, feeds mean reversion
	FixtureTrending    = "SYN-TREND" // steady uptrend, feeds breakout
)

const fixtureStartMs = 1704067200000 // 2024-01-01 00:00:00 UTC

// LoadFixtures populates stores with deterministic synthetic data for
// demonstration runs.
func LoadFixtures(
	ctx context.Context,
	instrumentStore storage.InstrumentStore,
	priceBarStore storage.PriceBarStore,
) error {
	instruments := []*domain.Instrument{
		{InstrumentID: FixtureOscillating, Symbol: FixtureOscillating, LotSize: 1e-8, BarIntervalMs: domain.BarInterval5Min},
		{InstrumentID: FixtureTrending, Symbol: FixtureTrending, LotSize: 1e-8, BarIntervalMs: domain.BarInterval5Min},
	}
	for _, ins := range instruments {
		if err := instrumentStore.Insert(ctx, ins); err != nil {
			return err
		}
	}

	if err := priceBarStore.InsertBulk(ctx, FixtureOscillating, oscillatingBars(240)); err != nil {
		return err
	}
	return priceBarStore.InsertBulk(ctx, FixtureTrending, trendingBars(240))
}

// DefaultStrategyConfigs returns the demo campaign: both strategies, with
// Bollinger bands tight enough to trigger on the fixture amplitude.
func DefaultStrategyConfigs() []domain.StrategyConfig {
	k := 1.5
	return []domain.StrategyConfig{
		{StrategyType: domain.StrategyTypeMeanReversion, BollingerK: &k},
		{StrategyType: domain.StrategyTypeBreakout},
	}
}

// oscillatingBars produces a triangle wave between 95 and 105 with period
// 20, starting and ending the cycle at 100.
func oscillatingBars(n int) []domain.PriceBar {
	closes := make([]float64, n)
	for i := range closes {
		m := i % 20
		switch {
		case m <= 5:
			closes[i] = 100 + float64(m)
		case m <= 15:
			closes[i] = 105 - float64(m-5)
		default:
			closes[i] = 95 + float64(m-15)
		}
	}
	return barsFromCloses(closes)
}

// trendingBars produces a steady uptrend of 0.5 per bar from 100.
func trendingBars(n int) []domain.PriceBar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	return barsFromCloses(closes)
}

func barsFromCloses(closes []float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		high, low := open, open
		if c > high {
			high = c
		}
		if c < low {
			low = c
		}
		bars[i] = domain.PriceBar{
			TimestampMs: fixtureStartMs + int64(i)*domain.BarInterval5Min,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       c,
			Volume:      1000,
		}
	}
	return bars
}
