// Package portal retrieves and decodes hourly usage readings from the Uno
// customer portal.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/gebn/uno-usage-scraper/internal/window"
)

const (
	dailyUsagePath = "/unousagedaily.php"
	cookieName     = "WHMCSUser"
	projectURL     = "https://github.com/gebn/uno-usage-scraper"

	// portalZone is the civil zone the portal renders hour labels in.
	portalZone = "Europe/London"

	// maxResponseBytes caps how much of a page we are willing to read.
	maxResponseBytes = 4 << 20
)

type Logger interface {
	Printf(string, ...any)
}

// errEndOfData means the portal has no further history to page through.
var errEndOfData = errors.New("portal signalled end of data")

// Client fetches raw hourly usage records over a window, following the
// portal's one-page-per-day pagination and absorbing transient failures.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	version string
	loc     *time.Location
	log     Logger
	now     func() time.Time
}

// NewClient builds a portal client. version is reported to the portal in the
// User-Agent so its operators can tell who we are.
func NewClient(baseURL, version string, log Logger) (*Client, error) {
	loc, err := time.LoadLocation(portalZone)
	if err != nil {
		return nil, fmt.Errorf("load portal zone: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 2 // 3 attempts total
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = log

	return &Client{
		http:    rc,
		baseURL: baseURL,
		version: version,
		loc:     loc,
		log:     log,
		now:     time.Now,
	}, nil
}

// Fetch retrieves the raw records covering win for a product, walking back one
// daily page at a time until the window's start is reached or the portal runs
// out of data. The result is unfiltered: callers should expect records outside
// the window and overlapping hours across pages.
func (c *Client) Fetch(ctx context.Context, productID int64, cookie string, win window.Window) ([]RawSample, error) {
	now := c.now().In(c.loc)

	// A page spans 24 civil hours, so this is generous even with overlap.
	maxPages := int(win.Span()/(24*time.Hour)) + 2

	var all []RawSample
	for daysAgo := 0; daysAgo < maxPages; daysAgo++ {
		page, err := c.fetchPage(ctx, productID, cookie, daysAgo, now.AddDate(0, 0, -daysAgo))
		if errors.Is(err, errEndOfData) {
			c.log.Printf("portal has no page %d days back; stopping pagination", daysAgo)
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		earliest := earliestHour(page)
		if !earliest.After(win.Start) {
			return all, nil
		}
		c.log.Printf("page %d reaches back to %s, window starts %s; paging further",
			daysAgo, earliest.Format(time.RFC3339), win.Start.Format(time.RFC3339))
	}
	// End of pagination without covering the window; the parser will report
	// the shortfall as gaps.
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, productID int64, cookie string, daysAgo int, ref time.Time) ([]RawSample, error) {
	url := fmt.Sprintf("%s%s?id=%d", c.baseURL, dailyUsagePath, productID)
	if daysAgo > 0 {
		url = fmt.Sprintf("%s&days_ago=%d", url, daysAgo)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("uno-usage-scraper/%s (%s)", c.version, projectURL))
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch daily usage page %d: %w", daysAgo, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound && daysAgo > 0:
		// the portal only keeps so much history
		return nil, errEndOfData
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("portal returned HTTP %d for page %d", resp.StatusCode, daysAgo)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read portal response: %w", err)
	}

	return parsePage(string(body), ref)
}

func earliestHour(samples []RawSample) time.Time {
	var earliest time.Time
	for _, s := range samples {
		if earliest.IsZero() || s.HourUTC.Before(earliest) {
			earliest = s.HourUTC
		}
	}
	return earliest
}
