// Package simulation walks an ordered bar sequence once and turns
// per-bar position targets into simulated trades against an evolving
// equity balance.
//
// All mutable run state lives in a single state struct threaded through
// the fold; the fold only ever sees bars at or before the current index,
// which makes the no-look-ahead invariant mechanically checkable.
package simulation

import (
	"errors"
	"fmt"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/idhash"
	"intraday-backtest-lab/internal/indicator"
)

// Simulation errors
var (
	ErrEmptyBars      = errors.New("empty bar sequence")
	ErrSignalMismatch = errors.New("signal sequence length does not match bar sequence")
	ErrBadWarmup      = errors.New("warm-up index must not be negative")
)

// Input holds everything one simulation needs; bars and signals are
// fully materialized before the fold starts, nothing blocks on I/O.
type Input struct {
	InstrumentID string
	StrategyID   string
	Bars         []domain.PriceBar
	Signals      []domain.PositionState // aligned with Bars
	Warmup       int                    // first index with a defined signal
	Config       domain.RunConfig
}

// Output is the finalized simulation result for one instrument.
type Output struct {
	EquityCurve []domain.EquityPoint
	Trades      []domain.Trade
	FinalEquity float64

	// Insolvent is set when sizing degenerated or equity hit zero; the
	// equity curve stays flat at the last valid value from InsolventAtMs.
	Insolvent     bool
	InsolventAtMs int64
}

// openTrade tracks the single open position. Size and protective levels
// are computed once at entry and never change while open.
type openTrade struct {
	entryTs    int64
	entryPrice float64
	direction  int
	size       float64
	entryCost  float64

	stop      float64
	target    float64
	hasStop   bool
	hasTarget bool
}

// runState is the explicit per-bar mutable state of the fold.
type runState struct {
	equity   float64
	position domain.PositionState
	open     *openTrade
	halted   bool
}

// Run executes the simulation. Transitions are driven solely by the
// signal sequence; fills follow Config.EntryPolicy (same-bar close by
// default, next-bar open when configured). Any trade still open at the
// final bar is force-closed at that bar's close.
func Run(in Input) (*Output, error) {
	if err := in.Config.Validate(); err != nil {
		return nil, err
	}
	n := len(in.Bars)
	if n == 0 {
		return nil, ErrEmptyBars
	}
	if len(in.Signals) != n {
		return nil, fmt.Errorf("%w: %d signals for %d bars", ErrSignalMismatch, len(in.Signals), n)
	}
	if in.Warmup < 0 {
		return nil, ErrBadWarmup
	}

	cfg := in.Config
	st := runState{equity: cfg.InitialEquity, position: domain.PositionFlat}
	out := &Output{}

	// ATR is only needed when protective exits are configured.
	var atr []indicator.Value
	if cfg.StopATRMult > 0 || cfg.TargetATRMult > 0 {
		highs := make([]float64, n)
		lows := make([]float64, n)
		closes := make([]float64, n)
		for i, b := range in.Bars {
			highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
		}
		atr = indicator.ATR(highs, lows, closes, cfg.ATRWindow)
	}

	// Target decided on the previous bar, awaiting its next-open fill.
	var pending *domain.PositionState

	for i := in.Warmup; i < n; i++ {
		bar := in.Bars[i]

		if !st.halted {
			// Protective levels are checked before any fill at this bar,
			// so a position first faces its stop on the bar after entry.
			checkProtectiveExits(&st, out, in, bar)

			switch cfg.EntryPolicy {
			case domain.EntryAtNextOpen:
				if pending != nil {
					applyTransition(&st, out, in, *pending, bar.TimestampMs, bar.Open, atrAt(atr, i))
					pending = nil
				}
				if sig := in.Signals[i]; !st.halted && sig != st.position && i < n-1 {
					// A transition decided on the final bar has no next
					// open to fill at; it is dropped.
					target := sig
					pending = &target
				}
			default: // EntryAtClose
				if sig := in.Signals[i]; sig != st.position {
					applyTransition(&st, out, in, sig, bar.TimestampMs, bar.Close, atrAt(atr, i))
				}
			}

			// Terminal liquidation: finite-horizon performance cannot
			// leave a position perpetually open.
			if i == n-1 && st.open != nil {
				closeTrade(&st, out, in, bar.TimestampMs, bar.Close, domain.ExitReasonFinalBar)
			}

			if st.equity <= 0 && !st.halted {
				markInsolvent(&st, out, bar.TimestampMs)
			}
		}

		eq := st.equity
		if cfg.MarkToMarket && st.open != nil {
			eq += (bar.Close - st.open.entryPrice) * st.open.size * float64(st.open.direction)
		}
		out.EquityCurve = append(out.EquityCurve, domain.EquityPoint{TimestampMs: bar.TimestampMs, Equity: eq})
	}

	out.FinalEquity = st.equity
	return out, nil
}

// applyTransition moves the state machine to target at the given bar
// price. A direction flip is close-then-open at the same bar, two
// atomic sub-steps at the same base price. av is the ATR at the fill
// bar; an undefined value leaves the entry without protective levels.
func applyTransition(st *runState, out *Output, in Input, target domain.PositionState, ts int64, price float64, av indicator.Value) {
	if target == st.position {
		return
	}

	if st.position != domain.PositionFlat {
		reason := domain.ExitReasonSignal
		if target != domain.PositionFlat {
			reason = domain.ExitReasonFlip
		}
		closeTrade(st, out, in, ts, price, reason)
		if st.equity <= 0 {
			markInsolvent(st, out, ts)
			return
		}
	}

	if target == domain.PositionFlat {
		return
	}

	dir := target.DirectionSign()
	entryPrice := fillPrice(price, dir, in.Config.SlippageBps)
	size := positionSize(st.equity, in.Config.RiskFraction, entryPrice, in.Config.LotSize, in.Config.MaxLeverage)
	if size <= 0 {
		markInsolvent(st, out, ts)
		return
	}

	open := &openTrade{
		entryTs:    ts,
		entryPrice: entryPrice,
		direction:  dir,
		size:       size,
		entryCost:  in.Config.CommissionPerSide,
	}
	if av.Defined {
		d := float64(dir)
		if in.Config.StopATRMult > 0 {
			open.stop = entryPrice - d*in.Config.StopATRMult*av.V
			open.hasStop = true
		}
		if in.Config.TargetATRMult > 0 {
			open.target = entryPrice + d*in.Config.TargetATRMult*av.V
			open.hasTarget = true
		}
	}

	st.position = target
	st.open = open
}

// checkProtectiveExits closes the open position when the bar's range
// touches its stop or target. The stop wins when both are touched inside
// one bar, and the fill is the level itself: the level is a resting
// order, not a market exit, so no slippage applies.
func checkProtectiveExits(st *runState, out *Output, in Input, bar domain.PriceBar) {
	open := st.open
	if open == nil {
		return
	}

	var hitStop, hitTarget bool
	if open.direction == 1 {
		hitStop = open.hasStop && bar.Low <= open.stop
		hitTarget = open.hasTarget && bar.High >= open.target
	} else {
		hitStop = open.hasStop && bar.High >= open.stop
		hitTarget = open.hasTarget && bar.Low <= open.target
	}

	switch {
	case hitStop:
		settleTrade(st, out, in, bar.TimestampMs, open.stop, domain.ExitReasonStop)
	case hitTarget:
		settleTrade(st, out, in, bar.TimestampMs, open.target, domain.ExitReasonTarget)
	}
}

// closeTrade realizes the open trade at the bar price after slippage.
func closeTrade(st *runState, out *Output, in Input, ts int64, price float64, reason string) {
	open := st.open
	if open == nil {
		return
	}
	settleTrade(st, out, in, ts, fillPrice(price, -open.direction, in.Config.SlippageBps), reason)
}

// settleTrade realizes the open trade at exitPrice. Equity moves here
// and only here; the closed trade is immutable afterwards.
func settleTrade(st *runState, out *Output, in Input, ts int64, exitPrice float64, reason string) {
	open := st.open
	if open == nil {
		return
	}

	costs := open.entryCost + in.Config.CommissionPerSide
	gross := (exitPrice - open.entryPrice) * open.size * float64(open.direction)
	realized := gross - costs
	st.equity += realized

	out.Trades = append(out.Trades, domain.Trade{
		TradeID:          idhash.ComputeTradeID(in.InstrumentID, in.StrategyID, open.entryTs),
		InstrumentID:     in.InstrumentID,
		StrategyID:       in.StrategyID,
		EntryTimestampMs: open.entryTs,
		EntryPrice:       open.entryPrice,
		Direction:        open.direction,
		Size:             open.size,
		ExitTimestampMs:  ts,
		ExitPrice:        exitPrice,
		ExitReason:       reason,
		RealizedPnL:      realized,
		Costs:            costs,
	})

	st.open = nil
	st.position = domain.PositionFlat
}

// markInsolvent halts all further trading; the equity curve continues
// flat at the current equity.
func markInsolvent(st *runState, out *Output, ts int64) {
	st.halted = true
	if !out.Insolvent {
		out.Insolvent = true
		out.InsolventAtMs = ts
	}
}

// fillPrice applies the flat slippage assumption directionally: buys
// (side +1) pay up, sells (side -1) receive less.
func fillPrice(price float64, side int, slippageBps float64) float64 {
	return price * (1 + float64(side)*slippageBps/10_000)
}

// atrAt indexes an optional ATR series; a nil or short series reads as
// undefined.
func atrAt(atr []indicator.Value, i int) indicator.Value {
	if i < len(atr) {
		return atr[i]
	}
	return indicator.Value{}
}
