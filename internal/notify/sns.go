// Package notify composes human-readable operator messages and publishes them
// to an SNS topic. Publishing is best-effort: callers log failures but never
// roll back a successful scrape because of one.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/gebn/uno-usage-scraper/internal/credential"
	"github.com/gebn/uno-usage-scraper/internal/hourusage"
	"github.com/gebn/uno-usage-scraper/internal/window"
)

type Logger interface {
	Printf(string, ...any)
}

// Config captures the configuration necessary to publish notifications.
type Config struct {
	// Region is where the topic lives, usually derived from its ARN.
	Region          string
	TopicARN        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// AppToken identifies the sender to the downstream delivery bridge on
	// usage summaries.
	AppToken string
}

// snsAPI captures the subset of the AWS SDK we use so it can be mocked in
// tests.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier dispatches messages through an SNS topic.
type Notifier struct {
	log      Logger
	client   snsAPI
	topicARN string
	appToken string
}

// New builds an SNS-backed notifier from AWS configuration.
func New(ctx context.Context, log Logger, cfg Config) (*Notifier, error) {
	if cfg.Region == "" {
		return nil, errors.New("sns region is required")
	}
	if cfg.TopicARN == "" {
		return nil, errors.New("sns topic ARN is required")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newNotifier(log, sns.NewFromConfig(awsCfg), cfg), nil
}

func newNotifier(log Logger, client snsAPI, cfg Config) *Notifier {
	return &Notifier{
		log:      log,
		client:   client,
		topicARN: cfg.TopicARN,
		appToken: cfg.AppToken,
	}
}

// UsageSummary publishes the totals for the window's samples.
func (n *Notifier) UsageSummary(ctx context.Context, win window.Window, samples []hourusage.HourUsage) error {
	var up, down int64
	for _, sample := range samples {
		up += sample.Up
		down += sample.Down
	}

	payload, err := json.Marshal(struct {
		App  string `json:"app"`
		Body string `json:"body"`
	}{
		App:  n.appToken,
		Body: fmt.Sprintf("%s up, %s down", hourusage.FormatBytes(up), hourusage.FormatBytes(down)),
	})
	if err != nil {
		return fmt.Errorf("marshal usage summary: %w", err)
	}
	return n.publish(ctx, "usage summary", string(payload))
}

// CredentialState publishes a warning appropriate to the cookie's lifecycle
// state. OK is silent.
func (n *Notifier) CredentialState(ctx context.Context, state credential.State, expiresAt, now time.Time) error {
	switch state {
	case credential.StateWarning:
		return n.publish(ctx, "credential warning",
			fmt.Sprintf("Uno cookie will expire in %s", expiresAt.Sub(now)))
	case credential.StateExpired:
		return n.publish(ctx, "credential expired",
			fmt.Sprintf("Uno cookie expired %s ago; scrapes will fail until it is replaced", now.Sub(expiresAt)))
	default:
		return nil
	}
}

// CredentialRejected publishes when the portal refuses the cookie although its
// configured expiry has not been reached.
func (n *Notifier) CredentialRejected(ctx context.Context, expiresAt time.Time) error {
	return n.publish(ctx, "credential rejected",
		fmt.Sprintf("Portal rejected the Uno cookie before its configured expiry (%s); it may have been revoked",
			expiresAt.Format(time.RFC3339)))
}

// LateRun publishes when an invocation happened well outside its scheduled
// slot.
func (n *Notifier) LateRun(ctx context.Context, expected, actual time.Time) error {
	return n.publish(ctx, "late run",
		fmt.Sprintf("Scrape executed too early or too late:\nExpected: %s\nActual: %s",
			expected.Format(time.RFC3339), actual.Format(time.RFC3339)))
}

func (n *Notifier) publish(ctx context.Context, kind, message string) error {
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	n.log.Printf("published %s: %s", kind, aws.ToString(out.MessageId))
	return nil
}
