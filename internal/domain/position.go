package domain

// PositionState is the desired position after a bar closes, evaluated
// using only information available up to and including that bar.
type PositionState string

// Position state constants
const (
	PositionFlat  PositionState = "FLAT"
	PositionLong  PositionState = "LONG"
	PositionShort PositionState = "SHORT"
)

// DirectionSign returns +1 for LONG, -1 for SHORT, 0 for FLAT.
func (p PositionState) DirectionSign() int {
	switch p {
	case PositionLong:
		return 1
	case PositionShort:
		return -1
	default:
		return 0
	}
}
