package domain

import (
	"errors"
	"fmt"
)

// Bar sequence validation errors
var (
	ErrEmptyBarSequence  = errors.New("empty bar sequence")
	ErrNonMonotonicBars  = errors.New("bar timestamps must be strictly increasing")
	ErrDuplicateBarStamp = errors.New("duplicate bar timestamp")
)

// ValidateBars checks that the sequence is non-empty and strictly
// increasing in timestamp. Gaps are fine (non-trading periods);
// duplicates and reordering are not. The returned error names the
// offending position.
func ValidateBars(bars []PriceBar) error {
	if len(bars) == 0 {
		return ErrEmptyBarSequence
	}
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].TimestampMs, bars[i].TimestampMs
		if cur == prev {
			return fmt.Errorf("%w: %d at index %d", ErrDuplicateBarStamp, cur, i)
		}
		if cur < prev {
			return fmt.Errorf("%w: %d followed by %d at index %d", ErrNonMonotonicBars, prev, cur, i)
		}
	}
	return nil
}
