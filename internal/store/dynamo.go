// Package store persists hourly usage samples in DynamoDB. Writes are upserts
// keyed by (product, hour), so re-running a scrape over the same window leaves
// the table unchanged.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gebn/uno-usage-scraper/internal/hourusage"
)

// maxBatchItems is DynamoDB's hard cap on items per BatchWriteItem call.
const maxBatchItems = 25

type Logger interface {
	Printf(string, ...any)
}

// Config captures the configuration necessary to talk to DynamoDB.
type Config struct {
	Region          string
	Table           string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// MaxRetryRounds bounds how many times a batch's unprocessed remainder is
	// resubmitted before the samples are reported as uncommitted.
	MaxRetryRounds int
}

// dynamoAPI captures the subset of the AWS SDK we use so it can be mocked in
// tests.
type dynamoAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store implements idempotent batched persistence of usage samples.
type Store struct {
	log       Logger
	client    dynamoAPI
	table     string
	maxRounds int
	sleepFn   func(time.Duration)
}

// New builds a DynamoDB-backed store from AWS configuration.
func New(ctx context.Context, log Logger, cfg Config) (*Store, error) {
	if cfg.Region == "" {
		return nil, errors.New("dynamodb region is required")
	}
	if cfg.Table == "" {
		return nil, errors.New("dynamodb table is required")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newStore(log, dynamodb.NewFromConfig(awsCfg), cfg), nil
}

func newStore(log Logger, client dynamoAPI, cfg Config) *Store {
	rounds := cfg.MaxRetryRounds
	if rounds <= 0 {
		rounds = 3
	}
	return &Store{
		log:       log,
		client:    client,
		table:     cfg.Table,
		maxRounds: rounds,
		sleepFn:   time.Sleep,
	}
}

// Save upserts the samples for a product. The batch capability is bounded and
// may acknowledge only part of a submission, so samples are chunked, each
// chunk submitted, and only the unprocessed remainder resubmitted, for a
// bounded number of rounds. If anything still hasn't committed the returned
// PersistenceError lists exactly those samples.
func (s *Store) Save(ctx context.Context, productID int64, samples []hourusage.HourUsage) error {
	if len(samples) == 0 {
		return nil
	}

	start := time.Now()
	var failed []hourusage.HourUsage
	var lastErr error

	for begin := 0; begin < len(samples); begin += maxBatchItems {
		end := begin + maxBatchItems
		if end > len(samples) {
			end = len(samples)
		}
		chunk := samples[begin:end]
		if remaining, err := s.saveChunk(ctx, productID, chunk); err != nil {
			failed = append(failed, remaining...)
			lastErr = err
		}
	}

	if len(failed) > 0 {
		return &PersistenceError{Uncommitted: failed, Err: lastErr}
	}

	seconds := time.Since(start).Seconds()
	s.log.Printf("inserted %d samples in %.3fs (%.3f/s)", len(samples), seconds, float64(len(samples))/seconds)
	return nil
}

// saveChunk submits one bounded batch, retrying only what the service reports
// as unprocessed. On failure it returns the samples that never committed.
func (s *Store) saveChunk(ctx context.Context, productID int64, chunk []hourusage.HourUsage) ([]hourusage.HourUsage, error) {
	bySortKey := make(map[string]hourusage.HourUsage, len(chunk))
	pending := make([]types.WriteRequest, 0, len(chunk))
	for _, sample := range chunk {
		item, err := sample.Item(productID)
		if err != nil {
			return chunk, err
		}
		bySortKey[sample.DateHour()] = sample
		pending = append(pending, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	var lastErr error
	for round := 0; round <= s.maxRounds; round++ {
		if round > 0 {
			backoff := time.Duration(1<<uint(round-1)) * 200 * time.Millisecond
			s.sleepFn(backoff)
		}

		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: pending},
		})
		if err != nil {
			lastErr = err
			s.log.Printf("batch write round %d/%d failed: %v", round+1, s.maxRounds+1, err)
			continue
		}

		pending = out.UnprocessedItems[s.table]
		if len(pending) == 0 {
			return nil, nil
		}
		lastErr = fmt.Errorf("%d items unprocessed after round %d", len(pending), round+1)
		s.log.Printf("resubmitting %d unprocessed items", len(pending))
	}

	return samplesForRequests(pending, bySortKey), lastErr
}

// Put upserts a single sample, for callers outside the batched path.
func (s *Store) Put(ctx context.Context, productID int64, sample hourusage.HourUsage) error {
	item, err := sample.Item(productID)
	if err != nil {
		return err
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put %s: %w", sample, err)
	}
	return nil
}

// Ready confirms the table is reachable.
func (s *Store) Ready(ctx context.Context) error {
	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &s.table}); err != nil {
		return fmt.Errorf("describe table %s: %w", s.table, err)
	}
	return nil
}

// samplesForRequests maps write requests back to the samples they carry via
// the sort key attribute.
func samplesForRequests(reqs []types.WriteRequest, bySortKey map[string]hourusage.HourUsage) []hourusage.HourUsage {
	samples := make([]hourusage.HourUsage, 0, len(reqs))
	for _, req := range reqs {
		if req.PutRequest == nil {
			continue
		}
		attr, ok := req.PutRequest.Item[hourusage.AttrDateHour].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		if sample, ok := bySortKey[attr.Value]; ok {
			samples = append(samples, sample)
		}
	}
	return samples
}
