// Package scraper sequences one scrape invocation: window computation,
// credential evaluation, retrieval, normalization, persistence and
// notification.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gebn/uno-usage-scraper/internal/credential"
	"github.com/gebn/uno-usage-scraper/internal/hourusage"
	"github.com/gebn/uno-usage-scraper/internal/portal"
	"github.com/gebn/uno-usage-scraper/internal/store"
	"github.com/gebn/uno-usage-scraper/internal/usage"
	"github.com/gebn/uno-usage-scraper/internal/window"
)

// ExecutionTolerance is how far from its scheduled slot a run may start before
// we tell the operator about it.
const ExecutionTolerance = 5 * time.Minute

type Logger interface {
	Printf(string, ...any)
}

// Fetcher retrieves raw hourly records covering a window.
type Fetcher interface {
	Fetch(ctx context.Context, productID int64, cookie string, win window.Window) ([]portal.RawSample, error)
}

// Saver persists normalized samples idempotently.
type Saver interface {
	Save(ctx context.Context, productID int64, samples []hourusage.HourUsage) error
}

// Notifier dispatches operator messages. All calls are best-effort.
type Notifier interface {
	UsageSummary(ctx context.Context, win window.Window, samples []hourusage.HourUsage) error
	CredentialState(ctx context.Context, state credential.State, expiresAt, now time.Time) error
	CredentialRejected(ctx context.Context, expiresAt time.Time) error
	LateRun(ctx context.Context, expected, actual time.Time) error
}

type Metrics interface {
	ObserveRun(duration time.Duration, outcome string)
	AddSamplesStored(n int)
	AddWindowGaps(n int)
	RecordNotification(kind string, err error)
	SetCredentialState(state credential.State)
}

// Config is the per-deployment state a run needs, read once at startup.
type Config struct {
	ProductID      int64
	Cookie         string
	CookieExpires  time.Time
	CookieWarnings bool
	SendUsage      bool
	Span           time.Duration
}

// Runner executes scrape invocations. A single invocation runs to completion
// synchronously; the schedule guarantees runs never overlap.
type Runner struct {
	cfg      Config
	fetcher  Fetcher
	saver    Saver
	notifier Notifier
	metrics  Metrics
	log      Logger
	newRunID func() string
}

func NewRunner(cfg Config, fetcher Fetcher, saver Saver, notifier Notifier, metrics Metrics, log Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		fetcher:  fetcher,
		saver:    saver,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
		newRunID: uuid.NewString,
	}
}

// RunOnce performs a complete scrape for the invocation instant now. The
// credential state is evaluated and notified before any portal traffic, so an
// unrelated fetch outage can never mask an expiry warning. A partial
// persistence failure still produces a usage summary for whatever committed.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) (err error) {
	runID := r.newRunID()
	start := time.Now()
	outcome := "success"
	defer func() {
		r.metrics.ObserveRun(time.Since(start), outcome)
		if err != nil {
			r.log.Printf("run %s aborted (%s): %v", runID, outcome, err)
		}
	}()

	win, err := window.Compute(now, r.cfg.Span)
	if err != nil {
		outcome = "config_error"
		return fmt.Errorf("compute window: %w", err)
	}
	r.log.Printf("run %s scraping product %d over %s", runID, r.cfg.ProductID, win)

	state := credential.Evaluate(r.cfg.CookieExpires, now, r.cfg.CookieWarnings)
	r.metrics.SetCredentialState(state)
	credentialNotified := false
	if state != credential.StateOK {
		nErr := r.notifier.CredentialState(ctx, state, r.cfg.CookieExpires, now)
		r.metrics.RecordNotification("credential", nErr)
		if nErr != nil {
			r.log.Printf("run %s: credential notification failed: %v", runID, nErr)
		}
		credentialNotified = true
	}

	raw, err := r.fetcher.Fetch(ctx, r.cfg.ProductID, r.cfg.Cookie, win)
	if err != nil {
		var authErr *portal.AuthError
		var formatErr *portal.FormatError
		switch {
		case errors.As(err, &authErr):
			outcome = "auth_error"
			if !credentialNotified {
				nErr := r.notifier.CredentialRejected(ctx, r.cfg.CookieExpires)
				r.metrics.RecordNotification("credential", nErr)
				if nErr != nil {
					r.log.Printf("run %s: credential notification failed: %v", runID, nErr)
				}
			}
		case errors.As(err, &formatErr):
			outcome = "format_error"
		default:
			outcome = "fetch_error"
		}
		return fmt.Errorf("fetch: %w", err)
	}

	res, err := usage.Normalize(raw, win)
	if err != nil {
		outcome = "parse_error"
		return fmt.Errorf("parse: %w", err)
	}
	if len(res.Gaps) > 0 {
		r.metrics.AddWindowGaps(len(res.Gaps))
		r.log.Printf("run %s: %d of %d window hours have no reading", runID, len(res.Gaps), len(win.Hours()))
	}

	committed := res.Samples
	saveErr := r.saver.Save(ctx, r.cfg.ProductID, res.Samples)
	var persistErr *store.PersistenceError
	if saveErr != nil {
		if !errors.As(saveErr, &persistErr) {
			outcome = "store_error"
			return fmt.Errorf("store: %w", saveErr)
		}
		committed = persistErr.Committed(res.Samples)
		r.log.Printf("run %s: %d of %d samples failed to commit", runID, len(persistErr.Uncommitted), len(res.Samples))
	}
	r.metrics.AddSamplesStored(len(committed))

	if r.cfg.SendUsage {
		nErr := r.notifier.UsageSummary(ctx, win, committed)
		r.metrics.RecordNotification("usage_summary", nErr)
		if nErr != nil {
			r.log.Printf("run %s: usage summary failed: %v", runID, nErr)
		}
	}

	if persistErr != nil {
		outcome = "partial"
		return fmt.Errorf("store: %w", saveErr)
	}

	r.log.Printf("run %s stored %d samples for %s", runID, len(committed), win)
	return nil
}

// CheckTimely warns the operator when a run starts outside its scheduled
// slot's tolerance. Best-effort, like all notifications.
func (r *Runner) CheckTimely(ctx context.Context, expected, actual time.Time) {
	drift := actual.Sub(expected)
	if drift < 0 {
		drift = -drift
	}
	if drift <= ExecutionTolerance {
		return
	}
	nErr := r.notifier.LateRun(ctx, expected, actual)
	r.metrics.RecordNotification("late_run", nErr)
	if nErr != nil {
		r.log.Printf("late run notification failed: %v", nErr)
	}
}
