// Package errkind holds the error taxonomy shared by the trading core.
//
// Callers wrap these sentinels with fmt.Errorf("...: %w", err) and classify
// with errors.Is.
package errkind

import "errors"

var (
	// ErrInvalidParameter marks a caller bug: bad period, mismatched series, unknown mode.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrMissingInput means a required value is not warmed up yet; retry next tick.
	ErrMissingInput = errors.New("missing input")
	// ErrMarketDataGap marks a candle fetch failure for one symbol.
	ErrMarketDataGap = errors.New("market data gap")
	// ErrPositionClosed is returned when an exit targets a position that is already CLOSED.
	ErrPositionClosed = errors.New("position already closed")
)

// NotReady reports whether err only signals a warm-up condition.
func NotReady(err error) bool {
	return errors.Is(err, ErrMissingInput)
}
