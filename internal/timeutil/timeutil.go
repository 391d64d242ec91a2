// Package timeutil provides utility functions and types for working with
// time-related operations.
package timeutil

import (
	"fmt"
	"math"
	"time"

	"github.com/markusmobius/go-dateparser"
)

const minutesInAnHour = 60

// FromStr parses a human date such as "10 mins ago" or "18:30" relative to
// the current time.
func FromStr(str string) (time.Time, error) {
	return FromStrAt(str, time.Now())
}

// FromStrAt parses str relative to now.
func FromStrAt(str string, now time.Time) (time.Time, error) {
	cfg := &dateparser.Configuration{
		CurrentTime: now,
	}

	dt, err := dateparser.Parse(cfg, str)
	if err != nil {
		return time.Time{}, err
	}

	return dt.Time, nil
}

// Round rounds a time value in seconds, minutes, or hours to the nearest integer.
func Round(t float64) int {
	return int(math.Round(t))
}

// MinsToHoursAndMins expresses a minutes value in hours and mins.
func MinsToHoursAndMins(val int) (hrs, mins int) {
	hrs = int(math.Floor(float64(val) / float64(minutesInAnHour)))
	mins = val % minutesInAnHour

	return
}

// FormatDuration renders d as "1h 05m" or "12m 30s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	mins := int(d / time.Minute)
	if mins >= minutesInAnHour {
		hrs, m := MinsToHoursAndMins(mins)
		return fmt.Sprintf("%dh %02dm", hrs, m)
	}

	secs := Round(float64(d%time.Minute) / float64(time.Second))
	if secs == 60 {
		mins++
		secs = 0
	}

	return fmt.Sprintf("%dm %02ds", mins, secs)
}

// Clock formats t as a wall clock time, in 24 hour form when twentyFour
// is set.
func Clock(t time.Time, twentyFour bool) string {
	if twentyFour {
		return t.Format("15:04")
	}

	return t.Format("03:04 PM")
}
