package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const envelopeTypeNotification = "Notification"

var ErrMalformedEnvelope = errors.New("malformed_sns_envelope")

// Envelope is the SNS wrapper around every message delivered to the queues.
type Envelope struct {
	Type      string    `json:"Type"`
	MessageID string    `json:"MessageId"`
	TopicArn  string    `json:"TopicArn"`
	Message   string    `json:"Message"`
	Timestamp time.Time `json:"Timestamp"`
}

func ParseEnvelope(body string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type != envelopeTypeNotification {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrMalformedEnvelope, env.Type)
	}
	if strings.TrimSpace(env.Message) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedEnvelope)
	}
	return &env, nil
}
