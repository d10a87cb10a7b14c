// Package hourusage holds the normalized per-hour usage sample and its stored
// representation.
package hourusage

import (
	"fmt"
	"time"
)

// DateHourLayout renders an hour instant as its store sort key, e.g.
// "2018-10-27T22Z". Scraping the same hour twice therefore overwrites rather
// than duplicates.
const DateHourLayout = "2006-01-02T15Z"

// HourUsage represents the usage on a line during a one-hour period. Immutable
// once constructed.
type HourUsage struct {
	// Hour is the beginning of the hour this usage is for, in UTC.
	Hour time.Time
	// Down is the amount of data downloaded during the hour in bytes.
	Down int64
	// Up is the amount of data uploaded during the hour in bytes.
	Up int64
}

// New builds a sample, discarding any unit smaller than the hour.
func New(hour time.Time, down, up int64) HourUsage {
	return HourUsage{
		Hour: hour.UTC().Truncate(time.Hour),
		Down: down,
		Up:   up,
	}
}

// Total is the combined transfer during the hour.
func (u HourUsage) Total() int64 {
	return u.Down + u.Up
}

// DateHour is the sample's sort key within its product partition.
func (u HourUsage) DateHour() string {
	return u.Hour.Format(DateHourLayout)
}

func (u HourUsage) String() string {
	return fmt.Sprintf("HourUsage(%s, Downloaded: %s, Uploaded: %s)",
		u.Hour.Format(time.RFC3339), FormatBytes(u.Down), FormatBytes(u.Up))
}

// FormatBytes represents a number of bytes as a base-2 storage quantity.
func FormatBytes(n int64) string {
	v := float64(n)
	if v < 0 {
		v = -v
	}
	for _, unit := range []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB", "ZiB"} {
		if v < 1024.0 {
			return fmt.Sprintf("%.1f %s", v, unit)
		}
		v /= 1024.0
	}
	return fmt.Sprintf("%.1f YiB", v)
}
