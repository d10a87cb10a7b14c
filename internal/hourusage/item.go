package hourusage

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AttrProductID is the table's partition key; AttrDateHour its sort key.
const (
	AttrProductID       = "ProductId"
	AttrDateHour        = "DateHour"
	AttrDownloadedBytes = "DownloadedBytes"
	AttrUploadedBytes   = "UploadedBytes"
)

type item struct {
	ProductID       int64  `dynamodbav:"ProductId"`
	DateHour        string `dynamodbav:"DateHour"`
	DownloadedBytes int64  `dynamodbav:"DownloadedBytes"`
	UploadedBytes   int64  `dynamodbav:"UploadedBytes"`
}

// Item returns the sample's DynamoDB representation. It is the inverse of
// ParseItem, such that ParseItem(u.Item(p)) == (u, p).
func (u HourUsage) Item(productID int64) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(item{
		ProductID:       productID,
		DateHour:        u.DateHour(),
		DownloadedBytes: u.Down,
		UploadedBytes:   u.Up,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", u, err)
	}
	return av, nil
}

// ParseItem reconstructs a sample from its stored representation, rejecting
// items with missing or mistyped attributes.
func ParseItem(av map[string]types.AttributeValue) (HourUsage, int64, error) {
	for _, attr := range []string{AttrProductID, AttrDateHour, AttrDownloadedBytes, AttrUploadedBytes} {
		if _, ok := av[attr]; !ok {
			return HourUsage{}, 0, fmt.Errorf("item missing attribute %s", attr)
		}
	}
	var it item
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return HourUsage{}, 0, fmt.Errorf("unmarshal item: %w", err)
	}
	hour, err := time.Parse(DateHourLayout, it.DateHour)
	if err != nil {
		return HourUsage{}, 0, fmt.Errorf("parse %s %q: %w", AttrDateHour, it.DateHour, err)
	}
	return New(hour, it.DownloadedBytes, it.UploadedBytes), it.ProductID, nil
}
