package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config carries everything one scrape invocation needs. It is loaded once at
// startup and treated as immutable thereafter.
type Config struct {
	// ProductID identifies the line to scrape usage for, e.g. 1799.
	ProductID int64 `validate:"gt=0"`

	// PortalBaseURL is the root of the portal, overridable for tests.
	PortalBaseURL string `validate:"required,url"`

	// PortalCookie is a valid WHMCSUser session cookie for the account.
	PortalCookie string `validate:"required"`

	// CookieExpires is when the cookie stops working, per the portal.
	CookieExpires time.Time `validate:"required"`

	// CookieWarnings enables pre-expiry warning notifications.
	CookieWarnings bool

	// SendUsage enables per-run usage summary notifications.
	SendUsage bool

	// PushoverAppToken identifies the sender on usage summaries.
	PushoverAppToken string

	DynamoTable  string `validate:"required"`
	DynamoRegion string `validate:"required"`

	// TopicARN is the SNS topic notifications are published to.
	TopicARN string `validate:"required,startswith=arn:"`

	// ScrapeSpan is how far back each run reaches, anchored to the hour.
	ScrapeSpan time.Duration `validate:"gt=0"`

	// RunTimeout bounds a whole invocation, I/O included.
	RunTimeout time.Duration `validate:"gt=0"`

	// HTTPAddr is the observability listen address.
	HTTPAddr string `validate:"required"`
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		PortalBaseURL:    getenv("UNO_BASE_URL", "https://my.uno.net.uk/uno"),
		PortalCookie:     os.Getenv("UNO_COOKIE"),
		PushoverAppToken: os.Getenv("USAGE_PUSHOVER_APP_TOKEN"),
		DynamoTable:      os.Getenv("DYNAMO_TABLE"),
		DynamoRegion:     os.Getenv("AWS_REGION"),
		TopicARN:         os.Getenv("NOTIFICATION_TOPIC_ARN"),
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
	}

	var err error
	if cfg.ProductID, err = parseInt(os.Getenv("UNO_PRODUCT_ID")); err != nil {
		return Config{}, fmt.Errorf("UNO_PRODUCT_ID: %w", err)
	}
	if cfg.CookieExpires, err = parseTime(os.Getenv("UNO_COOKIE_EXPIRES")); err != nil {
		return Config{}, fmt.Errorf("UNO_COOKIE_EXPIRES: %w", err)
	}
	if cfg.CookieWarnings, err = parseBool(getenv("UNO_COOKIE_WARNINGS", "true")); err != nil {
		return Config{}, fmt.Errorf("UNO_COOKIE_WARNINGS: %w", err)
	}
	if cfg.SendUsage, err = parseBool(getenv("SEND_USAGE", "false")); err != nil {
		return Config{}, fmt.Errorf("SEND_USAGE: %w", err)
	}
	if cfg.ScrapeSpan, err = parseDuration(getenv("SCRAPE_SPAN", "12h")); err != nil {
		return Config{}, fmt.Errorf("SCRAPE_SPAN: %w", err)
	}
	if cfg.RunTimeout, err = parseDuration(getenv("RUN_TIMEOUT", "60s")); err != nil {
		return Config{}, fmt.Errorf("RUN_TIMEOUT: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// TopicRegion extracts the region component from the notification topic ARN,
// which may differ from the store's region.
func (c Config) TopicRegion() (string, error) {
	parts := strings.Split(c.TopicARN, ":")
	if len(parts) < 4 || parts[3] == "" {
		return "", fmt.Errorf("malformed topic ARN %q", c.TopicARN)
	}
	return parts[3], nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func parseBool(v string) (bool, error) {
	return strconv.ParseBool(v)
}

func parseDuration(v string) (time.Duration, error) {
	return time.ParseDuration(v)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
