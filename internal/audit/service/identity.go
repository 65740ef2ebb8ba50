package service

import (
	"encoding/base64"
	"strings"

	"fcp-audit/internal/audit/models"
)

const identityDelimiter = "|"

// AuditID derives the record identity from application, sessionId, datetime
// and ip, in that order. Redeliveries of the same event always map to the
// same ID; changing the tuple changes which redeliveries collapse together.
func AuditID(view models.AuditView) string {
	key := strings.Join([]string{
		view.Application,
		view.SessionID,
		view.Datetime,
		view.IP,
	}, identityDelimiter)
	return base64.StdEncoding.EncodeToString([]byte(key))
}
