// Package transform splits a validated event into its audit and security
// projections. It performs no I/O.
package transform

import "fcp-audit/internal/audit/models"

// Result holds the views derived from one event. Either may be nil.
type Result struct {
	Audit    *models.AuditView
	Security *models.SecurityView
}

// Transform builds an AuditView when the event has an audit block and a
// SecurityView when it has a security block. It does not enforce that at least
// one is present.
func Transform(ev *models.NormalizedEvent) Result {
	var out Result
	if ev == nil {
		return out
	}

	if ev.Audit != nil {
		out.Audit = &models.AuditView{
			User:        ev.User,
			SessionID:   ev.SessionID,
			Datetime:    ev.Datetime,
			Environment: ev.Environment,
			Version:     ev.Version,
			Application: ev.Application,
			Component:   ev.Component,
			IP:          ev.IP,
			Audit:       ev.Audit.Clone(),
		}
	}

	if ev.Security != nil {
		out.Security = &models.SecurityView{
			User:        ev.User,
			SessionID:   ev.SessionID,
			Datetime:    ev.Datetime,
			Environment: ev.Environment,
			Version:     ev.Version,
			Application: ev.Application,
			Component:   ev.Component,
			IP:          ev.IP,
			PMCode:      ev.Security.PMCode,
			Priority:    ev.Security.Priority,
			Details:     ev.Security.Details.Clone(),
		}
	}

	return out
}
