// Package window computes the absolute UTC time range a scrape run covers.
package window

import (
	"fmt"
	"time"
)

// Window is a half-open range [Start, End) of hourly readings, both bounds in
// UTC on exact hour boundaries.
type Window struct {
	Start time.Time
	End   time.Time
}

// Compute derives the window for an invocation at now reaching span backwards.
// The end is the hour boundary nearest to now, so late or retried invocations
// land on the same window as the on-time one. The result depends only on the
// arguments: civil time never enters the calculation, so a DST transition in
// any zone cannot shift the boundaries.
func Compute(now time.Time, span time.Duration) (Window, error) {
	if span <= 0 {
		return Window{}, fmt.Errorf("scrape span must be positive, got %s", span)
	}
	if span%time.Hour != 0 {
		return Window{}, fmt.Errorf("scrape span must be a whole number of hours, got %s", span)
	}
	end := now.UTC().Round(time.Hour)
	return Window{Start: end.Add(-span), End: end}, nil
}

// Contains reports whether the hourly instant t falls within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Hours returns every hour boundary in [Start, End) in ascending order.
func (w Window) Hours() []time.Time {
	hours := make([]time.Time, 0, int(w.End.Sub(w.Start)/time.Hour))
	for t := w.Start; t.Before(w.End); t = t.Add(time.Hour) {
		hours = append(hours, t)
	}
	return hours
}

// Span returns the window's width.
func (w Window) Span() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
