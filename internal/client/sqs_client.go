package client

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/episodeline/pipeline/internal/config"
)

// QueueTarget selects between the work queue and its dead-letter queue.
type QueueTarget int

const (
	QueueMain QueueTarget = iota
	QueueDeadLetter
)

type OutboundMessage struct {
	Body            string
	GroupID         string
	DeduplicationID string
	Attributes      map[string]string
}

type InboundMessage struct {
	MessageID     string
	ReceiptHandle string
	Body          string
	Attributes    map[string]string
}

type QueueAttributes struct {
	Visible  int
	InFlight int
	Delayed  int
}

// MessageQueue defines the interface for the job message queue
type MessageQueue interface {
	Send(ctx context.Context, msg OutboundMessage) (string, error)
	Receive(ctx context.Context, maxMessages, waitSeconds, visibilityTimeout int) ([]InboundMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
	ChangeVisibility(ctx context.Context, receiptHandle string, seconds int) error
	Attributes(ctx context.Context, target QueueTarget) (*QueueAttributes, error)
}

// sqsAPI is the subset of the SDK client used here.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQSClient implements MessageQueue for an SQS FIFO queue
type SQSClient struct {
	api           sqsAPI
	queueURL      string
	deadLetterURL string
}

func NewSQSClient(ctx context.Context, awsCfg *config.AWSConfig, queueCfg *config.QueueConfig) (*SQSClient, error) {
	if queueCfg.URL == "" {
		return nil, fmt.Errorf("SQS queue URL not configured")
	}

	sdkCfg, err := loadAWSConfig(ctx, awsCfg)
	if err != nil {
		return nil, err
	}

	return newSQSClientWithAPI(sqs.NewFromConfig(sdkCfg), queueCfg.URL, queueCfg.DeadLetterURL), nil
}

func newSQSClientWithAPI(api sqsAPI, queueURL, deadLetterURL string) *SQSClient {
	return &SQSClient{api: api, queueURL: queueURL, deadLetterURL: deadLetterURL}
}

func (c *SQSClient) Send(ctx context.Context, msg OutboundMessage) (string, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(c.queueURL),
		MessageBody:       aws.String(msg.Body),
		MessageAttributes: toMessageAttributes(msg.Attributes),
	}
	if msg.GroupID != "" {
		input.MessageGroupId = aws.String(msg.GroupID)
	}
	if msg.DeduplicationID != "" {
		input.MessageDeduplicationId = aws.String(msg.DeduplicationID)
	}

	out, err := c.api.SendMessage(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

func (c *SQSClient) Receive(ctx context.Context, maxMessages, waitSeconds, visibilityTimeout int) ([]InboundMessage, error) {
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.queueURL),
		MaxNumberOfMessages:   int32(maxMessages),
		WaitTimeSeconds:       int32(waitSeconds),
		VisibilityTimeout:     int32(visibilityTimeout),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	messages := make([]InboundMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		attrs := make(map[string]string, len(m.MessageAttributes))
		for k, v := range m.MessageAttributes {
			attrs[k] = aws.ToString(v.StringValue)
		}
		messages = append(messages, InboundMessage{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
			Attributes:    attrs,
		})
	}
	return messages, nil
}

func (c *SQSClient) Delete(ctx context.Context, receiptHandle string) error {
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (c *SQSClient) ChangeVisibility(ctx context.Context, receiptHandle string, seconds int) error {
	_, err := c.api.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: int32(seconds),
	})
	if err != nil {
		return fmt.Errorf("failed to change message visibility: %w", err)
	}
	return nil
}

func (c *SQSClient) Attributes(ctx context.Context, target QueueTarget) (*QueueAttributes, error) {
	url := c.queueURL
	if target == QueueDeadLetter {
		url = c.deadLetterURL
	}
	if url == "" {
		return &QueueAttributes{}, nil
	}

	out, err := c.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(url),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
			types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get queue attributes: %w", err)
	}

	return &QueueAttributes{
		Visible:  atoiAttr(out.Attributes, string(types.QueueAttributeNameApproximateNumberOfMessages)),
		InFlight: atoiAttr(out.Attributes, string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)),
		Delayed:  atoiAttr(out.Attributes, string(types.QueueAttributeNameApproximateNumberOfMessagesDelayed)),
	}, nil
}

func toMessageAttributes(attrs map[string]string) map[string]types.MessageAttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		out[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	return out
}

func atoiAttr(attrs map[string]string, name string) int {
	n, err := strconv.Atoi(attrs[name])
	if err != nil {
		return 0
	}
	return n
}
