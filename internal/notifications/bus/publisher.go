// Package bus provides the SQS-based producer handing reminder payloads to
// the real-time delivery collaborator (the push gateway consuming the
// reminder bus queue). Fire-and-forget from the engine's perspective:
// delivery retries, fan-out, and presence are the consumer's concern.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"calwatch/internal/config"
	"calwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ReminderMessage is the JSON body placed on the reminder bus queue. The
// MessageID is a fresh UUID per publication so the consumer can deduplicate
// redeliveries.
type ReminderMessage struct {
	MessageID   string                `json:"message_id"`
	PartnerID   int64                 `json:"partner_id"`
	PublishedAt time.Time             `json:"published_at"`
	Payload     types.ReminderPayload `json:"payload"`
}

// Publisher implements the engine's BusPublisher over SQS.
type Publisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPublisher creates a Publisher for the configured reminder bus queue.
func NewPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:   client,
		queueURL: awsCfg.BusQueueURL,
		logger:   logger,
	}
}

// PublishReminder enqueues one reminder payload for one partner. The partner
// id rides along as a message attribute so consumers can route without
// parsing the body.
func (p *Publisher) PublishReminder(ctx context.Context, partnerID int64, payload types.ReminderPayload) error {
	msg := ReminderMessage{
		MessageID:   uuid.New().String(),
		PartnerID:   partnerID,
		PublishedAt: time.Now().UTC(),
		Payload:     payload,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling reminder message: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"partner_id": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(partnerID, 10)),
			},
		},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamBus, "failed to publish reminder payload", err)
	}

	p.logger.Info("reminder payload published",
		"message_id", msg.MessageID,
		"partner_id", partnerID,
		"event_id", payload.EventID,
	)
	return nil
}
