package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gebn/uno-usage-scraper/internal/credential"
	"github.com/gebn/uno-usage-scraper/internal/hourusage"
	"github.com/gebn/uno-usage-scraper/internal/portal"
	"github.com/gebn/uno-usage-scraper/internal/store"
	"github.com/gebn/uno-usage-scraper/internal/window"
)

var (
	now    = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	expiry = now.Add(90 * 24 * time.Hour)
)

type fakeLogger struct{}

func (fakeLogger) Printf(string, ...any) {}

type fakeFetcher struct {
	raw   []portal.RawSample
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ int64, _ string, _ window.Window) ([]portal.RawSample, error) {
	f.calls++
	return f.raw, f.err
}

type fakeSaver struct {
	err   error
	saved [][]hourusage.HourUsage
}

func (f *fakeSaver) Save(_ context.Context, _ int64, samples []hourusage.HourUsage) error {
	f.saved = append(f.saved, samples)
	return f.err
}

type fakeNotifier struct {
	summaryErr error
	summaries  [][]hourusage.HourUsage
	credStates []credential.State
	rejected   int
	late       int
}

func (f *fakeNotifier) UsageSummary(_ context.Context, _ window.Window, samples []hourusage.HourUsage) error {
	f.summaries = append(f.summaries, samples)
	return f.summaryErr
}

func (f *fakeNotifier) CredentialState(_ context.Context, state credential.State, _, _ time.Time) error {
	f.credStates = append(f.credStates, state)
	return nil
}

func (f *fakeNotifier) CredentialRejected(_ context.Context, _ time.Time) error {
	f.rejected++
	return nil
}

func (f *fakeNotifier) LateRun(_ context.Context, _, _ time.Time) error {
	f.late++
	return nil
}

type fakeMetrics struct {
	outcomes  []string
	stored    int
	gaps      int
	credState credential.State
}

func (f *fakeMetrics) ObserveRun(_ time.Duration, outcome string)  { f.outcomes = append(f.outcomes, outcome) }
func (f *fakeMetrics) AddSamplesStored(n int)                      { f.stored += n }
func (f *fakeMetrics) AddWindowGaps(n int)                         { f.gaps += n }
func (f *fakeMetrics) RecordNotification(string, error)            {}
func (f *fakeMetrics) SetCredentialState(state credential.State)   { f.credState = state }

func fullWindowRaw() []portal.RawSample {
	raw := make([]portal.RawSample, 12)
	for i := range raw {
		raw[i] = portal.RawSample{
			HourUTC:   now.Add(time.Duration(i-12) * time.Hour),
			DownBytes: int64((i + 1) * 1000),
			UpBytes:   int64((i + 1) * 100),
		}
	}
	return raw
}

func newTestRunner(cfg Config, fetcher Fetcher, saver Saver, notifier Notifier, metrics Metrics) *Runner {
	r := NewRunner(cfg, fetcher, saver, notifier, metrics, fakeLogger{})
	r.newRunID = func() string { return "test-run" }
	return r
}

func defaultConfig() Config {
	return Config{
		ProductID:      1799,
		Cookie:         "secret",
		CookieExpires:  expiry,
		CookieWarnings: true,
		SendUsage:      true,
		Span:           12 * time.Hour,
	}
}

func TestRunOnceSuccess(t *testing.T) {
	fetcher := &fakeFetcher{raw: fullWindowRaw()}
	saver := &fakeSaver{}
	notifier := &fakeNotifier{}
	metrics := &fakeMetrics{}

	r := newTestRunner(defaultConfig(), fetcher, saver, notifier, metrics)
	if err := r.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(saver.saved) != 1 || len(saver.saved[0]) != 12 {
		t.Fatalf("expected one save of 12 samples, got %v", saver.saved)
	}
	if len(notifier.summaries) != 1 || len(notifier.summaries[0]) != 12 {
		t.Fatalf("expected one summary of 12 samples, got %v", notifier.summaries)
	}
	if len(notifier.credStates) != 0 {
		t.Errorf("unexpected credential notifications: %v", notifier.credStates)
	}
	if metrics.stored != 12 {
		t.Errorf("samples stored metric = %d, want 12", metrics.stored)
	}
	if len(metrics.outcomes) != 1 || metrics.outcomes[0] != "success" {
		t.Errorf("outcomes = %v", metrics.outcomes)
	}
	if metrics.credState != credential.StateOK {
		t.Errorf("credential state = %s", metrics.credState)
	}
}

func TestRunOnceSummaryDisabled(t *testing.T) {
	fetcher := &fakeFetcher{raw: fullWindowRaw()}
	notifier := &fakeNotifier{}

	cfg := defaultConfig()
	cfg.SendUsage = false
	r := newTestRunner(cfg, fetcher, &fakeSaver{}, notifier, &fakeMetrics{})
	if err := r.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(notifier.summaries) != 0 {
		t.Errorf("expected no summary, got %v", notifier.summaries)
	}
}

func TestRunOnceWarnsBeforeFetching(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("portal down")}
	notifier := &fakeNotifier{}
	metrics := &fakeMetrics{}

	cfg := defaultConfig()
	cfg.CookieExpires = now.Add(48 * time.Hour)
	r := newTestRunner(cfg, fetcher, &fakeSaver{}, notifier, metrics)

	if err := r.RunOnce(context.Background(), now); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
	// the expiry warning must go out even though the fetch failed
	if len(notifier.credStates) != 1 || notifier.credStates[0] != credential.StateWarning {
		t.Fatalf("credential notifications = %v", notifier.credStates)
	}
	if metrics.outcomes[0] != "fetch_error" {
		t.Errorf("outcome = %s", metrics.outcomes[0])
	}
}

func TestRunOnceAuthErrorNotifiesRejection(t *testing.T) {
	fetcher := &fakeFetcher{err: &portal.AuthError{StatusCode: 401}}
	saver := &fakeSaver{}
	notifier := &fakeNotifier{}
	metrics := &fakeMetrics{}

	r := newTestRunner(defaultConfig(), fetcher, saver, notifier, metrics)
	if err := r.RunOnce(context.Background(), now); err == nil {
		t.Fatal("expected auth error to propagate")
	}

	if notifier.rejected != 1 {
		t.Errorf("rejected notifications = %d, want 1", notifier.rejected)
	}
	if len(saver.saved) != 0 {
		t.Error("nothing should be saved after an auth failure")
	}
	if metrics.outcomes[0] != "auth_error" {
		t.Errorf("outcome = %s", metrics.outcomes[0])
	}
}

func TestRunOnceAuthErrorAfterExpiryNotice(t *testing.T) {
	fetcher := &fakeFetcher{err: &portal.AuthError{StatusCode: 403}}
	notifier := &fakeNotifier{}

	cfg := defaultConfig()
	cfg.CookieExpires = now.Add(-time.Hour)
	r := newTestRunner(cfg, fetcher, &fakeSaver{}, notifier, &fakeMetrics{})

	if err := r.RunOnce(context.Background(), now); err == nil {
		t.Fatal("expected auth error to propagate")
	}
	if len(notifier.credStates) != 1 || notifier.credStates[0] != credential.StateExpired {
		t.Fatalf("credential notifications = %v", notifier.credStates)
	}
	// the expired notice already went out; don't double up
	if notifier.rejected != 0 {
		t.Errorf("rejected notifications = %d, want 0", notifier.rejected)
	}
}

func TestRunOncePartialPersistence(t *testing.T) {
	raw := fullWindowRaw()
	samples := make([]hourusage.HourUsage, len(raw))
	for i, r := range raw {
		samples[i] = hourusage.New(r.HourUTC, r.DownBytes, r.UpBytes)
	}

	fetcher := &fakeFetcher{raw: raw}
	saver := &fakeSaver{err: &store.PersistenceError{Uncommitted: samples[10:]}}
	notifier := &fakeNotifier{}
	metrics := &fakeMetrics{}

	r := newTestRunner(defaultConfig(), fetcher, saver, notifier, metrics)
	err := r.RunOnce(context.Background(), now)

	var perr *store.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	// the summary still goes out, covering only what committed
	if len(notifier.summaries) != 1 || len(notifier.summaries[0]) != 10 {
		t.Fatalf("summaries = %v", notifier.summaries)
	}
	if metrics.stored != 10 {
		t.Errorf("samples stored metric = %d, want 10", metrics.stored)
	}
	if metrics.outcomes[0] != "partial" {
		t.Errorf("outcome = %s", metrics.outcomes[0])
	}
}

func TestRunOnceNotificationFailureDoesNotAbort(t *testing.T) {
	fetcher := &fakeFetcher{raw: fullWindowRaw()}
	notifier := &fakeNotifier{summaryErr: errors.New("sns down")}
	metrics := &fakeMetrics{}

	r := newTestRunner(defaultConfig(), fetcher, &fakeSaver{}, notifier, metrics)
	if err := r.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("notification failure should not fail the run: %v", err)
	}
	if metrics.outcomes[0] != "success" {
		t.Errorf("outcome = %s", metrics.outcomes[0])
	}
}

func TestRunOnceRecordsGaps(t *testing.T) {
	raw := fullWindowRaw()[:9] // 3 hours missing
	fetcher := &fakeFetcher{raw: raw}
	metrics := &fakeMetrics{}

	r := newTestRunner(defaultConfig(), fetcher, &fakeSaver{}, &fakeNotifier{}, metrics)
	if err := r.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if metrics.gaps != 3 {
		t.Errorf("gap metric = %d, want 3", metrics.gaps)
	}
}

func TestCheckTimely(t *testing.T) {
	notifier := &fakeNotifier{}
	r := newTestRunner(defaultConfig(), &fakeFetcher{}, &fakeSaver{}, notifier, &fakeMetrics{})

	r.CheckTimely(context.Background(), now, now.Add(2*time.Minute))
	if notifier.late != 0 {
		t.Fatalf("2 minutes drift should be tolerated, got %d notifications", notifier.late)
	}

	r.CheckTimely(context.Background(), now, now.Add(10*time.Minute))
	if notifier.late != 1 {
		t.Fatalf("late notifications = %d, want 1", notifier.late)
	}

	r.CheckTimely(context.Background(), now, now.Add(-10*time.Minute))
	if notifier.late != 2 {
		t.Fatalf("early notifications should also fire, got %d", notifier.late)
	}
}
