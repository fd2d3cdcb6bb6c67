// Package clock supplies the current weekday and time of day used to evaluate
// do-not-disturb windows. All values are UTC.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// Fixed returns a Clock frozen at t.
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// DayAndTime returns the UTC weekday (0 = Sunday) and "HH:MM" of c.Now().
func DayAndTime(c Clock) (int, string) {
	now := c.Now().UTC()
	return int(now.Weekday()), now.Format("15:04")
}
