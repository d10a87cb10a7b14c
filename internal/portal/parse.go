package portal

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// The daily usage page embeds two JavaScript arrays: "data" holds downloaded
// megabytes per hour, "data2" uploaded. Each element pairs a 12-hour clock
// label with a quantity, e.g. ["5\npm", 2779.14].
var (
	downloadVar = regexp.MustCompile(`var data = (.+);`)
	uploadVar   = regexp.MustCompile(`var data2 = (.+);`)
	entryRegex  = regexp.MustCompile(`"(\d+)\\n((?:a|p)m)",\W*(\d+(?:\.\d+)?)`)
)

const excerptLen = 256

// RawSample is a single hour's readings as decoded from a portal page, before
// any ordering, deduplication or window filtering.
type RawSample struct {
	// HourUTC is the beginning of the hour, in UTC.
	HourUTC time.Time
	// DownBytes and UpBytes are the transfer during the hour.
	DownBytes int64
	UpBytes   int64
}

type rawEntry struct {
	hour  int
	pm    bool
	bytes int64
}

// parsePage decodes a daily usage page. ref is the civil instant the page was
// rendered relative to, in the portal's zone: label hours at or after ref's
// hour belong to the previous civil day.
func parsePage(html string, ref time.Time) ([]RawSample, error) {
	downloads, err := extractVariableEntries(html, downloadVar, "data")
	if err != nil {
		return nil, err
	}
	uploads, err := extractVariableEntries(html, uploadVar, "data2")
	if err != nil {
		return nil, err
	}
	if len(downloads) != len(uploads) {
		return nil, formatError(html, fmt.Sprintf("download/upload arrays differ in length (%d vs %d)", len(downloads), len(uploads)))
	}

	samples := make([]RawSample, 0, len(downloads))
	for i := range downloads {
		if downloads[i].hour != uploads[i].hour || downloads[i].pm != uploads[i].pm {
			return nil, formatError(html, "download/upload array data points do not match up")
		}
		samples = append(samples, RawSample{
			HourUTC:   entryTime(downloads[i], ref).UTC(),
			DownBytes: downloads[i].bytes,
			UpBytes:   uploads[i].bytes,
		})
	}
	return samples, nil
}

// extractVariableEntries finds the named array variable and pattern-matches
// its elements. The result is guaranteed non-empty.
func extractVariableEntries(html string, pattern *regexp.Regexp, name string) ([]rawEntry, error) {
	value := pattern.FindStringSubmatch(html)
	if value == nil {
		return nil, formatError(html, fmt.Sprintf("could not find variable %s", name))
	}
	matches := entryRegex.FindAllStringSubmatch(value[1], -1)
	if len(matches) == 0 {
		return nil, formatError(html, fmt.Sprintf("could not extract any usage samples from variable %s", name))
	}

	entries := make([]rawEntry, 0, len(matches))
	for _, m := range matches {
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour < 1 || hour > 12 {
			return nil, formatError(html, fmt.Sprintf("implausible hour label %q in variable %s", m[1], name))
		}
		megabytes, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, formatError(html, fmt.Sprintf("unreadable quantity %q in variable %s", m[3], name))
		}
		entries = append(entries, rawEntry{
			hour:  hour,
			pm:    m[2] == "pm",
			bytes: int64(megabytes * 1e6),
		})
	}
	return entries, nil
}

// entryTime realizes an entry's 12-hour clock label as an aware instant in
// ref's zone.
func entryTime(e rawEntry, ref time.Time) time.Time {
	hour := e.hour
	if hour == 12 || e.pm {
		hour = (hour + 12) % 24
	}
	if hour == 0 && e.pm {
		hour = 12
	}

	t := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, 0, 0, 0, ref.Location())
	if hour >= ref.Hour() {
		// was yesterday
		t = t.AddDate(0, 0, -1)
	}
	return t
}

func formatError(html, reason string) *FormatError {
	excerpt := html
	if len(excerpt) > excerptLen {
		excerpt = excerpt[:excerptLen]
	}
	return &FormatError{Reason: reason, Excerpt: excerpt}
}
