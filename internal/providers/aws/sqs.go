package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	notificationdomain "github.com/xtages/console/internal/notification/domain"
)

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Queue struct {
	client SQSAPI
}

func NewQueue(client SQSAPI) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Receive(ctx context.Context, queueURL string, opts notificationdomain.ReceiveOptions) ([]notificationdomain.Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            awssdk.String(queueURL),
		MaxNumberOfMessages: opts.MaxMessages,
		WaitTimeSeconds:     opts.WaitSeconds,
		VisibilityTimeout:   opts.VisibilityTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	messages := make([]notificationdomain.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, notificationdomain.Message{
			ID:            awssdk.ToString(m.MessageId),
			ReceiptHandle: awssdk.ToString(m.ReceiptHandle),
			Body:          awssdk.ToString(m.Body),
		})
	}
	return messages, nil
}

func (q *Queue) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      awssdk.String(queueURL),
		ReceiptHandle: awssdk.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}
