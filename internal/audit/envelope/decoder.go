// Package envelope unwraps queue messages into raw event objects.
//
// Messages arrive as SQS bodies carrying an SNS notification whose Message
// field is itself a JSON string holding the event:
//
//	{"Type":"Notification","Message":"{\"sessionId\":\"...\", ...}"}
//
// Both layers must parse; anything else is a malformed envelope and the event
// never reaches validation.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"fcp-audit/internal/audit/models"
)

var (
	errEmptyBody      = errors.New("empty body")
	errMissingMessage = errors.New("notification has no Message string")
	errNotObject      = errors.New("payload is not a JSON object")
)

// notification is the SNS layer. Only Message is required; the rest is kept
// for logging.
type notification struct {
	Type      string  `json:"Type"`
	MessageID string  `json:"MessageId"`
	TopicArn  string  `json:"TopicArn"`
	Message   *string `json:"Message"`
}

// Decoded is the result of unwrapping one queue message.
type Decoded struct {
	MessageID string
	TopicArn  string
	Event     models.RawEvent
}

// Decode unwraps the notification body and the event payload it carries.
func Decode(body []byte) (*Decoded, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, models.NewMalformedEnvelope("body", errEmptyBody)
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, models.NewMalformedEnvelope("body", err)
	}
	if n.Message == nil {
		return nil, models.NewMalformedEnvelope("body", errMissingMessage)
	}

	event, err := DecodePayload([]byte(*n.Message))
	if err != nil {
		return nil, err
	}

	return &Decoded{
		MessageID: n.MessageID,
		TopicArn:  n.TopicArn,
		Event:     event,
	}, nil
}

// DecodePayload parses the innermost event JSON. It must be an object.
func DecodePayload(payload []byte) (models.RawEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, models.NewMalformedEnvelope("message", errNotObject)
	}

	var event models.RawEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, models.NewMalformedEnvelope("message", fmt.Errorf("parse event: %w", err))
	}
	return event, nil
}
