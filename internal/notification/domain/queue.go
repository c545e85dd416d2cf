package domain

import "context"

// Message is one queue delivery.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          string
}

// ReceiveOptions tune a single long poll.
type ReceiveOptions struct {
	MaxMessages       int32
	WaitSeconds       int32
	VisibilityTimeout int32
}

// Queue is the transport notifications arrive on. Messages that are not
// deleted become visible again after their visibility timeout.
type Queue interface {
	Receive(ctx context.Context, queueURL string, opts ReceiveOptions) ([]Message, error)
	Delete(ctx context.Context, queueURL, receiptHandle string) error
}
