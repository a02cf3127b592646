package marketdata

import (
	"errors"
	"fmt"
	"time"

	"intraday-backtest-lab/internal/domain"
)

// ErrBadSessionWindow is returned for malformed HH:MM session bounds.
var ErrBadSessionWindow = errors.New("session window must be HH:MM with open before close")

// Session restricts bars to a trading window within each day, e.g.
// 09:35-16:00 to skip the opening auction and the after-hours tail.
type Session struct {
	openMinute  int // minutes since midnight, inclusive
	closeMinute int // minutes since midnight, inclusive
	loc         *time.Location
}

// NewSession parses "HH:MM" bounds. loc nil means UTC.
func NewSession(open, close string, loc *time.Location) (*Session, error) {
	openMin, err := parseMinuteOfDay(open)
	if err != nil {
		return nil, err
	}
	closeMin, err := parseMinuteOfDay(close)
	if err != nil {
		return nil, err
	}
	if openMin >= closeMin {
		return nil, fmt.Errorf("%w: %s >= %s", ErrBadSessionWindow, open, close)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Session{openMinute: openMin, closeMinute: closeMin, loc: loc}, nil
}

// Contains reports whether the bar timestamp falls inside the window.
func (s *Session) Contains(timestampMs int64) bool {
	t := time.UnixMilli(timestampMs).In(s.loc)
	m := t.Hour()*60 + t.Minute()
	return m >= s.openMinute && m <= s.closeMinute
}

// Filter returns the bars inside the session window, order preserved.
func (s *Session) Filter(bars []domain.PriceBar) []domain.PriceBar {
	out := make([]domain.PriceBar, 0, len(bars))
	for _, b := range bars {
		if s.Contains(b.TimestampMs) {
			out = append(out, b)
		}
	}
	return out
}

func parseMinuteOfDay(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadSessionWindow, v)
	}
	return t.Hour()*60 + t.Minute(), nil
}
