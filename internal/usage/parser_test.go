package usage

import (
	"errors"
	"testing"
	"time"

	"github.com/gebn/uno-usage-scraper/internal/portal"
	"github.com/gebn/uno-usage-scraper/internal/window"
)

func testWindow() window.Window {
	return window.Window{
		Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC),
	}
}

func hour(h int) time.Time {
	return time.Date(2024, 6, 1, h, 0, 0, 0, time.UTC)
}

func TestNormalizeSortsAndFilters(t *testing.T) {
	win := testWindow()
	raw := []portal.RawSample{
		{HourUTC: hour(3), DownBytes: 30, UpBytes: 3},
		{HourUTC: hour(1), DownBytes: 10, UpBytes: 1},
		{HourUTC: hour(6), DownBytes: 60, UpBytes: 6},  // at End: excluded
		{HourUTC: hour(-1), DownBytes: 99, UpBytes: 9}, // before Start: excluded
		{HourUTC: hour(0), DownBytes: 0, UpBytes: 0},
	}

	res, err := Normalize(raw, win)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(res.Samples))
	}
	for i := 1; i < len(res.Samples); i++ {
		if !res.Samples[i-1].Hour.Before(res.Samples[i].Hour) {
			t.Fatalf("samples not strictly ascending: %s then %s", res.Samples[i-1].Hour, res.Samples[i].Hour)
		}
	}
	if !res.Samples[0].Hour.Equal(hour(0)) || !res.Samples[2].Hour.Equal(hour(3)) {
		t.Errorf("unexpected sample hours: %v", res.Samples)
	}
}

func TestNormalizeLastDuplicateWins(t *testing.T) {
	win := testWindow()
	raw := []portal.RawSample{
		{HourUTC: hour(2), DownBytes: 100, UpBytes: 10},
		{HourUTC: hour(2), DownBytes: 200, UpBytes: 20},
	}

	res, err := Normalize(raw, win)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(res.Samples))
	}
	if res.Samples[0].Down != 200 || res.Samples[0].Up != 20 {
		t.Errorf("expected the later duplicate to win, got %s", res.Samples[0])
	}
}

func TestNormalizeReportsGaps(t *testing.T) {
	win := testWindow()
	raw := []portal.RawSample{
		{HourUTC: hour(0), DownBytes: 1, UpBytes: 1},
		{HourUTC: hour(2), DownBytes: 1, UpBytes: 1},
		{HourUTC: hour(5), DownBytes: 1, UpBytes: 1},
	}

	res, err := Normalize(raw, win)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []time.Time{hour(1), hour(3), hour(4)}
	if len(res.Gaps) != len(want) {
		t.Fatalf("gaps = %v, want %v", res.Gaps, want)
	}
	for i := range want {
		if !res.Gaps[i].Equal(want[i]) {
			t.Errorf("gaps[%d] = %s, want %s", i, res.Gaps[i], want[i])
		}
	}
}

func TestNormalizeCompleteWindowHasNoGaps(t *testing.T) {
	win := testWindow()
	var raw []portal.RawSample
	for _, h := range win.Hours() {
		raw = append(raw, portal.RawSample{HourUTC: h, DownBytes: 1, UpBytes: 1})
	}

	res, err := Normalize(raw, win)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Gaps) != 0 {
		t.Fatalf("expected no gaps, got %v", res.Gaps)
	}
	if len(res.Samples) != len(win.Hours()) {
		t.Fatalf("expected %d samples, got %d", len(win.Hours()), len(res.Samples))
	}
}

func TestNormalizeRejectsNegativeQuantities(t *testing.T) {
	win := testWindow()
	raw := []portal.RawSample{{HourUTC: hour(1), DownBytes: -5, UpBytes: 0}}

	_, err := Normalize(raw, win)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestNormalizeSubHourInstantsCollapse(t *testing.T) {
	win := testWindow()
	raw := []portal.RawSample{
		{HourUTC: hour(2).Add(25 * time.Minute), DownBytes: 1, UpBytes: 1},
	}

	res, err := Normalize(raw, win)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Samples) != 1 || !res.Samples[0].Hour.Equal(hour(2)) {
		t.Fatalf("expected sample truncated to %s, got %v", hour(2), res.Samples)
	}
}
