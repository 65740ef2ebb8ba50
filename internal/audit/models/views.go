package models

import (
	"math"
	"time"
)

// AuditView is the compliance projection of an event. It never carries the
// correlation ID or any security field.
type AuditView struct {
	User        string     `json:"user,omitempty" bson:"user,omitempty"`
	SessionID   string     `json:"sessionId" bson:"sessionId"`
	Datetime    string     `json:"datetime" bson:"datetime"`
	Environment string     `json:"environment" bson:"environment"`
	Version     string     `json:"version" bson:"version"`
	Application string     `json:"application" bson:"application"`
	Component   string     `json:"component" bson:"component"`
	IP          string     `json:"ip" bson:"ip"`
	Audit       AuditBlock `json:"audit" bson:"audit"`
}

// SecurityView is the security-operations projection, with the security
// block flattened into the top level.
type SecurityView struct {
	User        string          `json:"user,omitempty"`
	SessionID   string          `json:"sessionId"`
	Datetime    string          `json:"datetime"`
	Environment string          `json:"environment"`
	Version     string          `json:"version"`
	Application string          `json:"application"`
	Component   string          `json:"component"`
	IP          string          `json:"ip"`
	PMCode      string          `json:"pmcode"`
	Priority    int64           `json:"priority"`
	Details     SecurityDetails `json:"details"`
}

// AuditRecord is the stored form of an AuditView. Content is fixed at first
// insert; later writes with the same ID are discarded.
type AuditRecord struct {
	ID       string    `json:"_id" bson:"_id"`
	Received time.Time `json:"received" bson:"received"`

	User        string     `json:"user,omitempty" bson:"user,omitempty"`
	SessionID   string     `json:"sessionId" bson:"sessionId"`
	Datetime    string     `json:"datetime" bson:"datetime"`
	Environment string     `json:"environment" bson:"environment"`
	Version     string     `json:"version" bson:"version"`
	Application string     `json:"application" bson:"application"`
	Component   string     `json:"component" bson:"component"`
	IP          string     `json:"ip" bson:"ip"`
	Audit       AuditBlock `json:"audit" bson:"audit"`
}

// NewAuditRecord stamps a view with its identity and receive time.
func NewAuditRecord(id string, view AuditView, received time.Time) AuditRecord {
	return AuditRecord{
		ID:          id,
		Received:    received,
		User:        view.User,
		SessionID:   view.SessionID,
		Datetime:    view.Datetime,
		Environment: view.Environment,
		Version:     view.Version,
		Application: view.Application,
		Component:   view.Component,
		IP:          view.IP,
		Audit:       view.Audit.Clone(),
	}
}

// Page is a 1-based offset page request.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of records to skip. It saturates at math.MaxInt
// rather than wrapping, so a page too far out to address is past the end.
func (p Page) Offset() int {
	if p.Number <= 1 || p.Size <= 0 {
		return 0
	}
	if p.BeyondRange() {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// BeyondRange reports whether the page starts past any addressable offset.
func (p Page) BeyondRange() bool {
	return p.Size > 0 && p.Number > 1 && p.Number-1 > math.MaxInt/p.Size
}
