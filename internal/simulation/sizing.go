package simulation

import "github.com/shopspring/decimal"

// positionSize computes entry size as (equity * riskFraction) / entryPrice
// capped at equity*maxLeverage/entryPrice units (maxLeverage 0 means
// uncapped), rounded down to the instrument lot size. Decimal arithmetic
// keeps the lot rounding exact; float modulo would drift on small lots.
func positionSize(equity, riskFraction, entryPrice, lotSize, maxLeverage float64) float64 {
	if entryPrice <= 0 || equity <= 0 {
		return 0
	}
	raw := decimal.NewFromFloat(equity).
		Mul(decimal.NewFromFloat(riskFraction)).
		Div(decimal.NewFromFloat(entryPrice))
	if maxLeverage > 0 {
		maxUnits := decimal.NewFromFloat(equity).
			Mul(decimal.NewFromFloat(maxLeverage)).
			Div(decimal.NewFromFloat(entryPrice))
		if raw.GreaterThan(maxUnits) {
			raw = maxUnits
		}
	}
	lot := decimal.NewFromFloat(lotSize)
	units := raw.Div(lot).Floor().Mul(lot)
	f, _ := units.Float64()
	return f
}
