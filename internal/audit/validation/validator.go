// Package validation enforces the inbound event schema.
//
// Validation runs in two passes that both collect rather than short-circuit:
// extraction reads the raw JSON object into typed fields (type errors,
// null-vs-absent tracking), then go-playground/validator applies the
// declarative bounds in the struct tags of models.NormalizedEvent plus the
// cross-field rule that an event carries an audit or a security block.
// Unknown fields at any level are ignored.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"fcp-audit/internal/audit/models"
)

const (
	tagISODatetime     = "isodatetime"
	tagAuditOrSecurity = "auditorsecurity"
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDatetime accepts the ISO-8601 forms producers are known to send.
func ParseDatetime(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO 8601 date", s)
}

// Validator is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New builds a validator with the event rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation(tagISODatetime, func(fl validator.FieldLevel) bool {
		_, err := ParseDatetime(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(auditOrSecurity, models.NormalizedEvent{})
	return &Validator{validate: v}
}

func auditOrSecurity(sl validator.StructLevel) {
	ev := sl.Current().Interface().(models.NormalizedEvent)
	if ev.Audit == nil && ev.Security == nil {
		sl.ReportError(ev.Audit, "audit", "Audit", tagAuditOrSecurity, "")
	}
}

// Validate checks raw and returns the normalized event. On success the
// environment is lowercased, dashes are stripped from security.pmcode, and a
// null audit or security block is dropped. On failure the returned error
// wraps *models.ValidationError listing every violation.
func (v *Validator) Validate(raw models.RawEvent) (*models.NormalizedEvent, error) {
	x := newExtractor()
	root := newObject("", raw)

	ev := models.NormalizedEvent{
		User:          x.str(root, "user"),
		SessionID:     x.str(root, "sessionId"),
		CorrelationID: x.str(root, "correlationId"),
		Datetime:      x.str(root, "datetime"),
		Environment:   strings.ToLower(x.str(root, "environment")),
		Version:       x.str(root, "version"),
		Application:   x.str(root, "application"),
		Component:     x.str(root, "component"),
		IP:            x.str(root, "ip"),
	}

	if sec, ok := x.obj(root, "security").Get(); ok {
		ev.Security = x.security(sec)
	}
	if aud, ok := x.obj(root, "audit").Get(); ok {
		ev.Audit = x.audit(aud)
	}

	violations := append([]string{}, x.violations...)
	if err := v.validate.Struct(ev); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("validate event: %w", err)
		}
		for _, fe := range fieldErrs {
			if x.failed[fieldPath(fe)] {
				continue
			}
			violations = append(violations, message(fe, x.present))
		}
	}

	if len(violations) > 0 {
		return nil, models.NewValidationError(violations)
	}
	return &ev, nil
}

func (x *extractor) security(o object) *models.SecurityBlock {
	block := &models.SecurityBlock{
		PMCode:   strings.ReplaceAll(x.str(o, "pmcode"), "-", ""),
		Priority: x.integer(o, "priority"),
	}
	details := x.obj(o, "details")
	switch details.State() {
	case models.Null:
		x.add(quote(o.key("details")) + " must be of type object")
	case models.Present:
		d, _ := details.Get()
		block.Details = models.SecurityDetails{
			TransactionCode: x.optStr(d, "transactionCode"),
			Message:         x.optStr(d, "message"),
			AdditionalInfo:  x.optStr(d, "additionalInfo"),
		}
	}
	return block
}

func (x *extractor) audit(o object) *models.AuditBlock {
	return &models.AuditBlock{
		EventType: x.optStr(o, "eventType"),
		Action:    x.optStr(o, "action"),
		Entity:    x.optStr(o, "entity"),
		EntityID:  x.optStr(o, "entityId"),
		Status:    x.optStr(o, "status"),
		Details:   x.freeform(o, "details"),
	}
}

// message renders a constraint failure the way producers already see them
// from the upstream schema.
func message(fe validator.FieldError, present map[string]bool) string {
	path := fieldPath(fe)
	field := quote(path)

	switch fe.Tag() {
	case "required":
		if present[path] {
			return field + " is not allowed to be empty"
		}
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s length must be less than or equal to %s characters long", field, fe.Param())
	case tagISODatetime:
		return field + " must be in ISO 8601 date format"
	case tagAuditOrSecurity:
		return `at least one of "audit" or "security" must be provided and not null`
	default:
		return fmt.Sprintf("%s failed on the '%s' rule", field, fe.Tag())
	}
}

// fieldPath drops the struct name from the namespace: NormalizedEvent.ip -> ip.
func fieldPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}
