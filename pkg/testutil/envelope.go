package testutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// SQSBody wraps event the way it arrives on the queue: an SNS notification
// whose Message field is the JSON-encoded event.
func SQSBody(t testing.TB, event any) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err, "failed to marshal event")
	body, err := json.Marshal(map[string]any{
		"Type":      "Notification",
		"MessageId": "5a8b3c1e-0000-4000-8000-000000000001",
		"TopicArn":  "arn:aws:sns:eu-west-2:000000000000:fcp-audit",
		"Message":   string(payload),
	})
	require.NoError(t, err, "failed to marshal envelope")
	return body
}

// AuditEvent returns a valid event carrying only an audit block. Callers
// mutate the map to build variants.
func AuditEvent() map[string]any {
	return map[string]any{
		"user":          "IDM/1234",
		"sessionId":     "sess-1",
		"correlationId": "corr-1",
		"datetime":      "2025-03-01T10:15:30.000Z",
		"environment":   "PRODUCTION",
		"version":       "1.0",
		"application":   "FCP001",
		"component":     "web",
		"ip":            "127.0.0.1",
		"audit": map[string]any{
			"eventType": "PaymentRequest",
			"action":    "submitted",
			"entity":    "application",
			"entityId":  "123",
			"status":    "success",
			"details":   map[string]any{"caseId": "1"},
		},
	}
}
