package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// ErrQueueURLRequired is returned when the SQS queue URL is empty.
var ErrQueueURLRequired = errors.New("render: queue URL is required")

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue publishes render jobs as JSON messages on an SQS queue consumed by
// the render engine.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

// NewSQSQueue returns a queue bound to queueURL.
func NewSQSQueue(client SQSAPI, queueURL string) (*SQSQueue, error) {
	if queueURL == "" {
		return nil, ErrQueueURLRequired
	}
	return &SQSQueue{client: client, queueURL: queueURL}, nil
}

// Submit sends data to the queue.
func (q *SQSQueue) Submit(ctx context.Context, data JobData) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("render: marshal job data: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"video_id":   stringAttr(data.VideoID),
			"listing_id": stringAttr(data.ListingID),
			"clip_count": {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(len(data.Clips)))},
		},
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("render: send message: %w", err)
	}
	return nil
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

// Compile-time check that SQSQueue implements Queue.
var _ Queue = (*SQSQueue)(nil)
