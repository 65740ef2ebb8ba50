package models

import "encoding/json"

// Presence tracks whether an optional block was sent, sent as null, or sent
// with a value. The distinction only matters until validation collapses the
// first two into "absent".
type Presence int

const (
	Absent Presence = iota
	Null
	Present
)

func (p Presence) String() string {
	switch p {
	case Null:
		return "null"
	case Present:
		return "present"
	default:
		return "absent"
	}
}

// Block is a tri-state optional value as seen on the wire.
type Block[T any] struct {
	state Presence
	value T
}

// AbsentBlock returns a block that was not sent.
func AbsentBlock[T any]() Block[T] { return Block[T]{state: Absent} }

// NullBlock returns a block that was sent as an explicit null.
func NullBlock[T any]() Block[T] { return Block[T]{state: Null} }

// PresentBlock returns a block that carries a value.
func PresentBlock[T any](v T) Block[T] { return Block[T]{state: Present, value: v} }

func (b Block[T]) State() Presence { return b.state }

// Get returns the value and whether one is present.
func (b Block[T]) Get() (T, bool) {
	return b.value, b.state == Present
}

// Ptr collapses null and absent into nil.
func (b Block[T]) Ptr() *T {
	if b.state != Present {
		return nil
	}
	v := b.value
	return &v
}

// NormalizedEvent is a validated inbound event. Audit and Security are nil
// when the block was absent or null on the wire; at least one is non-nil.
type NormalizedEvent struct {
	User          string `json:"user,omitempty" validate:"max=50"`
	SessionID     string `json:"sessionId" validate:"required,max=50"`
	CorrelationID string `json:"correlationId" validate:"required,max=50"`
	Datetime      string `json:"datetime" validate:"required,isodatetime"`
	Environment   string `json:"environment" validate:"required,max=20"`
	Version       string `json:"version" validate:"required,max=10"`
	Application   string `json:"application" validate:"required,max=10"`
	Component     string `json:"component" validate:"required,max=30"`
	IP            string `json:"ip" validate:"required,max=20"`

	Security *SecurityBlock `json:"security,omitempty"`
	Audit    *AuditBlock    `json:"audit,omitempty"`
}

// SecurityBlock carries the fields forwarded to security operations.
type SecurityBlock struct {
	PMCode   string          `json:"pmcode" validate:"required,max=4"`
	Priority int64           `json:"priority"`
	Details  SecurityDetails `json:"details"`
}

// SecurityDetails sub-fields are optional; nil means not sent.
type SecurityDetails struct {
	TransactionCode *string `json:"transactionCode,omitempty" bson:"transactionCode,omitempty" validate:"omitnil,max=120"`
	Message         *string `json:"message,omitempty" bson:"message,omitempty" validate:"omitnil,max=120"`
	AdditionalInfo  *string `json:"additionalInfo,omitempty" bson:"additionalInfo,omitempty" validate:"omitnil,max=120"`
}

// AuditBlock carries the compliance fields persisted with the record.
type AuditBlock struct {
	EventType *string        `json:"eventType,omitempty" bson:"eventType,omitempty" validate:"omitnil,max=120"`
	Action    *string        `json:"action,omitempty" bson:"action,omitempty" validate:"omitnil,max=120"`
	Entity    *string        `json:"entity,omitempty" bson:"entity,omitempty" validate:"omitnil,max=120"`
	EntityID  *string        `json:"entityId,omitempty" bson:"entityId,omitempty" validate:"omitnil,max=120"`
	Status    *string        `json:"status,omitempty" bson:"status,omitempty" validate:"omitnil,max=120"`
	Details   map[string]any `json:"details" bson:"details"`
}

// Clone returns a deep enough copy for the views: strings are immutable, the
// details map is copied one level.
func (a AuditBlock) Clone() AuditBlock {
	out := a
	out.EventType = cloneString(a.EventType)
	out.Action = cloneString(a.Action)
	out.Entity = cloneString(a.Entity)
	out.EntityID = cloneString(a.EntityID)
	out.Status = cloneString(a.Status)
	out.Details = make(map[string]any, len(a.Details))
	for k, v := range a.Details {
		out.Details[k] = v
	}
	return out
}

// Clone copies the optional detail strings.
func (d SecurityDetails) Clone() SecurityDetails {
	return SecurityDetails{
		TransactionCode: cloneString(d.TransactionCode),
		Message:         cloneString(d.Message),
		AdditionalInfo:  cloneString(d.AdditionalInfo),
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr is a convenience for building optional fields.
func StringPtr(s string) *string { return &s }

// RawEvent is a decoded JSON object that has not been validated yet. Keys are
// kept exactly as sent.
type RawEvent map[string]json.RawMessage
