package strategy

import (
	"fmt"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/indicator"
)

// MeanReversionStrategy fades moves away from the Bollinger mean.
//
// Long entry: RSI below the oversold threshold AND close at or below the
// lower band. Short entry: RSI above the overbought threshold AND close
// at or above the upper band. Exit to FLAT when RSI comes back inside the
// neutral zone or close crosses the mean band. If long and short
// conditions ever fire on the same bar (possible only with pathological
// thresholds) the bar resolves to FLAT.
type MeanReversionStrategy struct {
	RSIWindow       int     // default 14
	BollingerWindow int     // default 20
	BollingerK      float64 // default 2
	Oversold        float64 // default 30
	Overbought      float64 // default 70
	NeutralLow      float64 // default 45
	NeutralHigh     float64 // default 55
	CooldownBars    int     // bars to stay flat after an exit, default 0
}

// NewMeanReversionStrategy creates a MeanReversionStrategy.
func NewMeanReversionStrategy(rsiWindow, bbWindow int, bbK, oversold, overbought, neutralLow, neutralHigh float64, cooldownBars int) *MeanReversionStrategy {
	return &MeanReversionStrategy{
		RSIWindow:       rsiWindow,
		BollingerWindow: bbWindow,
		BollingerK:      bbK,
		Oversold:        oversold,
		Overbought:      overbought,
		NeutralLow:      neutralLow,
		NeutralHigh:     neutralHigh,
		CooldownBars:    cooldownBars,
	}
}

// ID returns the strategy identifier including parameters.
func (s *MeanReversionStrategy) ID() string {
	return fmt.Sprintf("MEAN_REVERSION_rsi%d_bb%d_k%.1f_os%.0f_ob%.0f_cd%d",
		s.RSIWindow, s.BollingerWindow, s.BollingerK, s.Oversold, s.Overbought, s.CooldownBars)
}

// Warmup returns the first index where both RSI and the bands are defined.
func (s *MeanReversionStrategy) Warmup() int {
	w := s.RSIWindow
	if s.BollingerWindow-1 > w {
		w = s.BollingerWindow - 1
	}
	return w
}

// Signals walks the bar sequence once and returns the desired state per
// bar. The walk is strictly sequential; the state at i depends only on
// indicator values at i and the state carried from i-1.
func (s *MeanReversionStrategy) Signals(bars []domain.PriceBar) []domain.PositionState {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	rsi := indicator.RSI(closes, s.RSIWindow)
	mid, upper, lower := indicator.Bollinger(closes, s.BollingerWindow, s.BollingerK)

	out := make([]domain.PositionState, len(bars))
	state := domain.PositionFlat
	cooldown := 0

	for i := range bars {
		if !rsi[i].Defined || !mid[i].Defined {
			out[i] = domain.PositionFlat
			continue
		}
		close := closes[i]
		r := rsi[i].V

		switch state {
		case domain.PositionLong:
			if (r >= s.NeutralLow && r <= s.NeutralHigh) || close >= mid[i].V {
				state = domain.PositionFlat
				cooldown = s.CooldownBars
			}
		case domain.PositionShort:
			if (r >= s.NeutralLow && r <= s.NeutralHigh) || close <= mid[i].V {
				state = domain.PositionFlat
				cooldown = s.CooldownBars
			}
		}

		if state == domain.PositionFlat {
			if cooldown > 0 {
				cooldown--
			} else {
				longCond := r < s.Oversold && close <= lower[i].V
				shortCond := r > s.Overbought && close >= upper[i].V
				switch {
				case longCond && shortCond:
					// fail safe, no position
				case longCond:
					state = domain.PositionLong
				case shortCond:
					state = domain.PositionShort
				}
			}
		}

		out[i] = state
	}
	return out
}

// Ensure MeanReversionStrategy implements Strategy
var _ Strategy = (*MeanReversionStrategy)(nil)
