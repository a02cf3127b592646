package strategy

import (
	"fmt"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/indicator"
)

// BreakoutStrategy trades closes outside the trailing Donchian channel.
//
// Long entry: close above the prior-window channel high. Short entry:
// close below the prior-window channel low. Exit to FLAT when close is
// back at or inside the channel boundary the position broke out of. The
// channel is computed from bars strictly before the current one, so an
// entry bar never widens its own channel.
type BreakoutStrategy struct {
	ChannelWindow int // default 20
	CooldownBars  int // bars to stay flat after an exit, default 0
}

// NewBreakoutStrategy creates a BreakoutStrategy.
func NewBreakoutStrategy(channelWindow, cooldownBars int) *BreakoutStrategy {
	return &BreakoutStrategy{ChannelWindow: channelWindow, CooldownBars: cooldownBars}
}

// ID returns the strategy identifier including parameters.
func (s *BreakoutStrategy) ID() string {
	return fmt.Sprintf("BREAKOUT_w%d_cd%d", s.ChannelWindow, s.CooldownBars)
}

// Warmup returns the first index where the channel is defined.
func (s *BreakoutStrategy) Warmup() int {
	return s.ChannelWindow
}

// Signals walks the bar sequence once and returns the desired state per
// bar. No position changes happen while the channel is undefined.
func (s *BreakoutStrategy) Signals(bars []domain.PriceBar) []domain.PositionState {
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}

	chHigh, chLow := indicator.Donchian(highs, lows, s.ChannelWindow)

	out := make([]domain.PositionState, len(bars))
	state := domain.PositionFlat
	cooldown := 0

	for i, b := range bars {
		if !chHigh[i].Defined {
			out[i] = domain.PositionFlat
			continue
		}
		close := b.Close
		hi := chHigh[i].V
		lo := chLow[i].V

		switch state {
		case domain.PositionLong:
			if close <= hi {
				state = domain.PositionFlat
				cooldown = s.CooldownBars
			}
		case domain.PositionShort:
			if close >= lo {
				state = domain.PositionFlat
				cooldown = s.CooldownBars
			}
		}

		if state == domain.PositionFlat {
			if cooldown > 0 {
				cooldown--
			} else if close > hi {
				state = domain.PositionLong
			} else if close < lo {
				state = domain.PositionShort
			}
		}

		out[i] = state
	}
	return out
}

// Ensure BreakoutStrategy implements Strategy
var _ Strategy = (*BreakoutStrategy)(nil)
