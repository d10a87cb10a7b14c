// Package usage normalizes raw portal records into an ordered, deduplicated
// hourly series.
package usage

import (
	"fmt"
	"sort"
	"time"

	"github.com/gebn/uno-usage-scraper/internal/hourusage"
	"github.com/gebn/uno-usage-scraper/internal/portal"
	"github.com/gebn/uno-usage-scraper/internal/window"
)

// ParseError indicates a structurally unusable set of records, as opposed to a
// merely incomplete one.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unusable usage records: %s", e.Reason)
}

// Result is a normalized series plus the window hours no record arrived for.
// Gaps are not an error: a line can have legitimate metering gaps.
type Result struct {
	// Samples is sorted ascending by hour with no duplicate hours, all within
	// the requested window.
	Samples []hourusage.HourUsage
	// Gaps lists the window hours absent from Samples, ascending.
	Gaps []time.Time
}

// Normalize filters raw records to win, deduplicates by hour (the last
// occurrence wins, as later pages re-report overlapping hours), and sorts
// ascending.
func Normalize(raw []portal.RawSample, win window.Window) (Result, error) {
	byHour := make(map[time.Time]hourusage.HourUsage, len(raw))
	for _, r := range raw {
		if r.DownBytes < 0 || r.UpBytes < 0 {
			return Result{}, &ParseError{Reason: fmt.Sprintf("negative quantity for hour %s", r.HourUTC.Format(time.RFC3339))}
		}
		sample := hourusage.New(r.HourUTC, r.DownBytes, r.UpBytes)
		if !win.Contains(sample.Hour) {
			continue
		}
		byHour[sample.Hour] = sample
	}

	samples := make([]hourusage.HourUsage, 0, len(byHour))
	for _, sample := range byHour {
		samples = append(samples, sample)
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Hour.Before(samples[j].Hour)
	})

	var gaps []time.Time
	for _, hour := range win.Hours() {
		if _, ok := byHour[hour]; !ok {
			gaps = append(gaps, hour)
		}
	}

	return Result{Samples: samples, Gaps: gaps}, nil
}
