package domain

// StrategyConfig represents strategy selection and parameters. Optional
// parameters are pointers; nil means "use the documented default".
type StrategyConfig struct {
	StrategyType string // "MEAN_REVERSION" | "BREAKOUT"

	// MEAN_REVERSION parameters
	RSIWindow       *int     // default 14
	BollingerWindow *int     // default 20
	BollingerK      *float64 // default 2
	Oversold        *float64 // default 30
	Overbought      *float64 // default 70
	NeutralLow      *float64 // default 45
	NeutralHigh     *float64 // default 55

	// BREAKOUT parameters
	ChannelWindow *int // default 20

	// Common parameters
	CooldownBars *int // bars to wait after an exit before re-entering, default 0
}

// Strategy type constants
const (
	StrategyTypeMeanReversion = "MEAN_REVERSION"
	StrategyTypeBreakout      = "BREAKOUT"
)
