// Package queue provides the SQS producer that defers list-based
// entitlement resyncs to the reconciler worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"simplenotes/internal/config"
	"simplenotes/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ResyncPublisher sends ResyncRequest messages to the resync queue.
type ResyncPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewResyncPublisher creates a ResyncPublisher for the configured queue.
func NewResyncPublisher(client SQSSender, queueCfg config.QueueConfig, logger *slog.Logger) *ResyncPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResyncPublisher{
		client:   client,
		queueURL: queueCfg.ResyncQueueURL,
		logger:   logger,
	}
}

// PublishResync enqueues req. Messages for the same customer are not
// deduplicated; the worker's reconciliation is idempotent.
func (p *ResyncPublisher) PublishResync(ctx context.Context, req types.ResyncRequest) error {
	if req.CustomerRef == "" {
		return fmt.Errorf("queue: resync request has no customer_ref")
	}
	if req.Trigger == "" {
		req.Trigger = types.TriggerQueue
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal ResyncRequest: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(req.Reason),
			},
		},
	}
	if requestID := types.GetRequestID(ctx); requestID != "" {
		input.MessageAttributes["request_id"] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(requestID),
		}
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send ResyncRequest to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "resync request queued",
		"queue_url", p.queueURL,
		"customer_ref", req.CustomerRef,
		"reason", req.Reason,
		"event_id", req.EventID,
	)
	return nil
}
