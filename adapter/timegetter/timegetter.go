// Package timegetter supplies the instants written by $currentDate and
// stamped into generated object ids.
package timegetter

import (
	"time"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Precision is the resolution of a BSON date.
const Precision = time.Millisecond

// Wall reads the system clock.
type Wall struct{}

// NewTimeGetter returns the wall clock.
func NewTimeGetter() domain.TimeGetter {
	return Wall{}
}

// GetTime returns the current time in UTC, truncated to [Precision] so it
// survives a round trip through the database unchanged.
func (Wall) GetTime() time.Time {
	return time.Now().UTC().Truncate(Precision)
}

// Fixed always returns the same instant, truncated to [Precision].
type Fixed time.Time

// GetTime implements [domain.TimeGetter].
func (f Fixed) GetTime() time.Time {
	return time.Time(f).Truncate(Precision)
}
