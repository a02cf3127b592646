package domain

import (
	"errors"
	"fmt"
)

// EntryPolicy selects the fill price for a transition decided at bar i.
type EntryPolicy string

// Entry policy constants
const (
	// EntryAtClose fills at bar i's close. Default: uses only prices
	// already observed at decision time.
	EntryAtClose EntryPolicy = "CLOSE"
	// EntryAtNextOpen fills at bar i+1's open. A transition decided on
	// the final bar cannot be filled and is dropped.
	EntryAtNextOpen EntryPolicy = "NEXT_OPEN"
)

// RunConfig validation errors
var (
	ErrNonPositiveEquity  = errors.New("initial_equity must be positive")
	ErrRiskFractionRange  = errors.New("risk_fraction must be in (0, 1]")
	ErrNonPositiveLotSize = errors.New("lot_size must be positive")
	ErrBadEntryPolicy     = errors.New("entry_policy must be CLOSE or NEXT_OPEN")
	ErrBadBarInterval     = errors.New("bar_interval_ms must be positive")
	ErrNegativeSlippage   = errors.New("slippage_bps must not be negative")
	ErrNegativeCommission = errors.New("commission_per_trade must not be negative")
	ErrBadATRWindow       = errors.New("atr_window must be positive when stop/target multiples are set")
	ErrNegativeATRMult    = errors.New("stop/target ATR multiples must not be negative")
	ErrNegativeLeverage   = errors.New("max_leverage must not be negative")
)

// RunConfig configures a single instrument backtest run.
type RunConfig struct {
	InitialEquity float64     // starting equity, must be > 0
	RiskFraction  float64     // fraction of equity committed per entry, (0, 1]
	EntryPolicy   EntryPolicy // fill price policy, default EntryAtClose
	LotSize       float64     // minimum tradable unit, entry size rounds down to it
	BarIntervalMs int64       // bar resolution, used for return annualization

	// Flat execution assumption. Both default to zero (frictionless).
	SlippageBps       float64 // applied directionally to every fill
	CommissionPerSide float64 // fixed cost charged on entry and on exit

	// MarkToMarket values the open position at each bar close instead of
	// moving equity only on trade close.
	MarkToMarket bool

	// ATR-based protective exits. When StopATRMult or TargetATRMult is
	// positive, every entry places a stop (entry -/+ StopATRMult*ATR) and
	// a target (entry +/- TargetATRMult*ATR) that are checked against each
	// subsequent bar's high/low range; the stop wins when both are touched
	// inside one bar. A zero multiple disables that side. Entries filled
	// before the ATR warms up carry no protective levels.
	ATRWindow     int
	StopATRMult   float64
	TargetATRMult float64

	// MaxLeverage caps entry size at equity*MaxLeverage/price units.
	// Zero means uncapped.
	MaxLeverage float64
}

// DefaultRunConfig returns a run configuration with documented defaults:
// 10000 initial equity, 10% risk fraction, same-bar close fills, 5-minute
// bars, frictionless execution.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		InitialEquity: 10_000,
		RiskFraction:  0.1,
		EntryPolicy:   EntryAtClose,
		LotSize:       1e-8,
		BarIntervalMs: BarInterval5Min,
	}
}

// Validate checks the configuration and returns the specific violated
// constraint. Called before any simulation step.
func (c RunConfig) Validate() error {
	if c.InitialEquity <= 0 {
		return fmt.Errorf("%w: got %v", ErrNonPositiveEquity, c.InitialEquity)
	}
	if c.RiskFraction <= 0 || c.RiskFraction > 1 {
		return fmt.Errorf("%w: got %v", ErrRiskFractionRange, c.RiskFraction)
	}
	if c.LotSize <= 0 {
		return fmt.Errorf("%w: got %v", ErrNonPositiveLotSize, c.LotSize)
	}
	if c.EntryPolicy != EntryAtClose && c.EntryPolicy != EntryAtNextOpen {
		return fmt.Errorf("%w: got %q", ErrBadEntryPolicy, c.EntryPolicy)
	}
	if c.BarIntervalMs <= 0 {
		return fmt.Errorf("%w: got %d", ErrBadBarInterval, c.BarIntervalMs)
	}
	if c.SlippageBps < 0 {
		return fmt.Errorf("%w: got %v", ErrNegativeSlippage, c.SlippageBps)
	}
	if c.CommissionPerSide < 0 {
		return fmt.Errorf("%w: got %v", ErrNegativeCommission, c.CommissionPerSide)
	}
	if c.StopATRMult < 0 || c.TargetATRMult < 0 {
		return fmt.Errorf("%w: got stop %v target %v", ErrNegativeATRMult, c.StopATRMult, c.TargetATRMult)
	}
	if (c.StopATRMult > 0 || c.TargetATRMult > 0) && c.ATRWindow <= 0 {
		return fmt.Errorf("%w: got %d", ErrBadATRWindow, c.ATRWindow)
	}
	if c.MaxLeverage < 0 {
		return fmt.Errorf("%w: got %v", ErrNegativeLeverage, c.MaxLeverage)
	}
	return nil
}
