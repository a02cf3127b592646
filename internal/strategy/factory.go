package strategy

import (
	"errors"

	"intraday-backtest-lab/internal/domain"
)

// Factory errors
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrNonPositiveWindow   = errors.New("indicator window must be positive")
	ErrNonPositiveBandK    = errors.New("band width multiplier must be positive")
	ErrThresholdRange      = errors.New("RSI thresholds must lie in [0, 100]")
	ErrNeutralZoneOrder    = errors.New("neutral zone low must not exceed neutral zone high")
	ErrNegativeCooldown    = errors.New("cooldown bars must not be negative")
)

// Documented strategy defaults.
const (
	DefaultRSIWindow       = 14
	DefaultBollingerWindow = 20
	DefaultBollingerK      = 2.0
	DefaultOversold        = 30.0
	DefaultOverbought      = 70.0
	DefaultNeutralLow      = 45.0
	DefaultNeutralHigh     = 55.0
	DefaultChannelWindow   = 20
	DefaultCooldownBars    = 0
)

// FromConfig creates a Strategy from domain.StrategyConfig. Nil
// parameters take the documented defaults; set parameters are validated.
func FromConfig(cfg domain.StrategyConfig) (Strategy, error) {
	switch cfg.StrategyType {
	case domain.StrategyTypeMeanReversion:
		return fromMeanReversionConfig(cfg)
	case domain.StrategyTypeBreakout:
		return fromBreakoutConfig(cfg)
	default:
		return nil, ErrUnknownStrategyType
	}
}

func fromMeanReversionConfig(cfg domain.StrategyConfig) (*MeanReversionStrategy, error) {
	rsiWindow := intOrDefault(cfg.RSIWindow, DefaultRSIWindow)
	bbWindow := intOrDefault(cfg.BollingerWindow, DefaultBollingerWindow)
	bbK := floatOrDefault(cfg.BollingerK, DefaultBollingerK)
	oversold := floatOrDefault(cfg.Oversold, DefaultOversold)
	overbought := floatOrDefault(cfg.Overbought, DefaultOverbought)
	neutralLow := floatOrDefault(cfg.NeutralLow, DefaultNeutralLow)
	neutralHigh := floatOrDefault(cfg.NeutralHigh, DefaultNeutralHigh)
	cooldown := intOrDefault(cfg.CooldownBars, DefaultCooldownBars)

	if rsiWindow <= 0 || bbWindow <= 0 {
		return nil, ErrNonPositiveWindow
	}
	if bbK <= 0 {
		return nil, ErrNonPositiveBandK
	}
	for _, th := range []float64{oversold, overbought, neutralLow, neutralHigh} {
		if th < 0 || th > 100 {
			return nil, ErrThresholdRange
		}
	}
	if neutralLow > neutralHigh {
		return nil, ErrNeutralZoneOrder
	}
	if cooldown < 0 {
		return nil, ErrNegativeCooldown
	}

	return NewMeanReversionStrategy(rsiWindow, bbWindow, bbK, oversold, overbought, neutralLow, neutralHigh, cooldown), nil
}

func fromBreakoutConfig(cfg domain.StrategyConfig) (*BreakoutStrategy, error) {
	window := intOrDefault(cfg.ChannelWindow, DefaultChannelWindow)
	cooldown := intOrDefault(cfg.CooldownBars, DefaultCooldownBars)

	if window <= 0 {
		return nil, ErrNonPositiveWindow
	}
	if cooldown < 0 {
		return nil, ErrNegativeCooldown
	}

	return NewBreakoutStrategy(window, cooldown), nil
}

func intOrDefault(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOrDefault(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
