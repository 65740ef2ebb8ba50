package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"fcp-audit/internal/audit/models"
)

type ValidatorSuite struct {
	suite.Suite
	validator *Validator
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupSuite() {
	s.validator = New()
}

// event builds a raw event from a base valid document with overrides applied.
// A nil override value deletes the key; the string "null" sends JSON null.
func (s *ValidatorSuite) event(overrides map[string]any) models.RawEvent {
	base := map[string]any{
		"user":          "IDM/8b2ba2a0-2e0f-4a4c-a7e0-3a3ffb2e2b2a",
		"sessionId":     "sess-123",
		"correlationId": "corr-456",
		"datetime":      "2025-03-01T10:15:30.000Z",
		"environment":   "dev",
		"version":       "1.1",
		"application":   "FCP001",
		"component":     "fcp-audit",
		"ip":            "127.0.0.1",
		"audit": map[string]any{
			"eventType": "Payment",
			"action":    "submitted",
			"entity":    "claim",
			"entityId":  "1234567890",
			"status":    "success",
			"details":   map[string]any{"caseId": "123"},
		},
	}
	for k, v := range overrides {
		if v == nil {
			delete(base, k)
			continue
		}
		if v == "null" {
			base[k] = nil
			continue
		}
		base[k] = v
	}

	body, err := json.Marshal(base)
	s.Require().NoError(err)
	var raw models.RawEvent
	s.Require().NoError(json.Unmarshal(body, &raw))
	return raw
}

func (s *ValidatorSuite) violations(err error) []string {
	s.Require().Error(err)
	verr, ok := models.AsValidationError(err)
	s.Require().True(ok, "expected validation error, got %T: %v", err, err)
	return verr.Details
}

func (s *ValidatorSuite) TestValidEvent() {
	ev, err := s.validator.Validate(s.event(nil))
	s.Require().NoError(err)

	s.Equal("sess-123", ev.SessionID)
	s.Equal("2025-03-01T10:15:30.000Z", ev.Datetime, "datetime keeps the producer's text")
	s.Nil(ev.Security)
	s.Require().NotNil(ev.Audit)
	s.Equal("submitted", *ev.Audit.Action)
	s.Equal(map[string]any{"caseId": "123"}, ev.Audit.Details)
}

func (s *ValidatorSuite) TestAuditOrSecurityRule() {
	security := map[string]any{"pmcode": "0001", "priority": 0}
	audit := map[string]any{"action": "viewed"}
	const rule = `at least one of "audit" or "security" must be provided and not null`

	cases := []struct {
		name     string
		audit    any
		security any
		wantErr  bool
	}{
		{"both absent", nil, nil, true},
		{"both null", "null", "null", true},
		{"audit null security absent", "null", nil, true},
		{"audit present security null", audit, "null", false},
		{"audit null security present", "null", security, false},
		{"only security", nil, security, false},
		{"both present", audit, security, false},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			overrides := map[string]any{"audit": tc.audit, "security": tc.security}
			ev, err := s.validator.Validate(s.event(overrides))
			if tc.wantErr {
				s.Contains(s.violations(err), rule)
				s.Nil(ev)
				return
			}
			s.Require().NoError(err)
			s.Equal(tc.audit == nil || tc.audit == "null", ev.Audit == nil, "null audit collapses to absent")
			s.Equal(tc.security == nil || tc.security == "null", ev.Security == nil, "null security collapses to absent")
		})
	}
}

func (s *ValidatorSuite) TestNormalization() {
	ev, err := s.validator.Validate(s.event(map[string]any{
		"environment": "PRODUCTION",
		"security":    map[string]any{"pmcode": "12-34", "priority": 9},
	}))
	s.Require().NoError(err)

	s.Equal("production", ev.Environment)
	s.Require().NotNil(ev.Security)
	s.Equal("1234", ev.Security.PMCode)
	s.Equal(int64(9), ev.Security.Priority)
	s.Equal(models.SecurityDetails{}, ev.Security.Details, "details default to empty")
}

func (s *ValidatorSuite) TestCollectsEveryViolation() {
	_, err := s.validator.Validate(s.event(map[string]any{
		"sessionId":   nil,
		"environment": "",
		"datetime":    "yesterday",
		"application": strings.Repeat("a", 11),
		"ip":          42,
		"audit":       "null",
	}))

	details := s.violations(err)
	s.ElementsMatch([]string{
		`"ip" must be a string`,
		`"sessionId" is required`,
		`"datetime" must be in ISO 8601 date format`,
		`"environment" is not allowed to be empty`,
		`"application" length must be less than or equal to 10 characters long`,
		`at least one of "audit" or "security" must be provided and not null`,
	}, details)
	s.Contains(err.Error(), "event is invalid")
}

func (s *ValidatorSuite) TestSecurityBlockRules() {
	cases := []struct {
		name     string
		security map[string]any
		want     string
	}{
		{"pmcode too long after stripping", map[string]any{"pmcode": "12-345", "priority": 1}, `"security.pmcode" length must be less than or equal to 4 characters long`},
		{"pmcode missing", map[string]any{"priority": 1}, `"security.pmcode" is required`},
		{"priority missing", map[string]any{"pmcode": "0001"}, `"security.priority" is required`},
		{"priority fractional", map[string]any{"pmcode": "0001", "priority": 1.5}, `"security.priority" must be an integer`},
		{"priority not a number", map[string]any{"pmcode": "0001", "priority": true}, `"security.priority" must be a number`},
		{"priority unsafe", map[string]any{"pmcode": "0001", "priority": 1 << 60}, `"security.priority" must be a safe number`},
		{"details null", map[string]any{"pmcode": "0001", "priority": 1, "details": nil}, `"security.details" must be of type object`},
		{"details message too long", map[string]any{"pmcode": "0001", "priority": 1, "details": map[string]any{"message": strings.Repeat("m", 121)}}, `"security.details.message" length must be less than or equal to 120 characters long`},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.validator.Validate(s.event(map[string]any{"security": tc.security}))
			s.Contains(s.violations(err), tc.want)
		})
	}
}

func (s *ValidatorSuite) TestPriorityAcceptsIntegralFloat() {
	ev, err := s.validator.Validate(s.event(map[string]any{
		"security": map[string]any{"pmcode": "0001", "priority": 3.0},
	}))
	s.Require().NoError(err)
	s.Equal(int64(3), ev.Security.Priority)
}

func (s *ValidatorSuite) TestUnknownFieldsIgnored() {
	ev, err := s.validator.Validate(s.event(map[string]any{
		"somethingElse": []int{1, 2},
		"audit":         map[string]any{"action": "viewed", "extra": true},
	}))
	s.Require().NoError(err)
	s.Equal("viewed", *ev.Audit.Action)
}

func (s *ValidatorSuite) TestAuditDetailsDefaultToEmpty() {
	ev, err := s.validator.Validate(s.event(map[string]any{
		"audit": map[string]any{"action": "viewed"},
	}))
	s.Require().NoError(err)
	s.NotNil(ev.Audit.Details)
	s.Empty(ev.Audit.Details)
}

func (s *ValidatorSuite) TestCaseInsensitiveKeys() {
	raw := s.event(map[string]any{"sessionId": nil})
	raw["sessionid"] = json.RawMessage(`"flat-key"`)

	ev, err := s.validator.Validate(raw)
	s.Require().NoError(err)
	s.Equal("flat-key", ev.SessionID)
}

func TestParseDatetime(t *testing.T) {
	t.Run("accepts ISO 8601 forms", func(t *testing.T) {
		for _, in := range []string{
			"2025-03-01T10:15:30.000Z",
			"2025-03-01T10:15:30Z",
			"2025-03-01T10:15:30+01:00",
			"2025-03-01T10:15:30+0100",
			"2025-03-01T10:15:30",
			"2025-03-01T10:15",
			"2025-03-01",
		} {
			_, err := ParseDatetime(in)
			assert.NoError(t, err, in)
		}
	})

	t.Run("rejects other text", func(t *testing.T) {
		for _, in := range []string{"", "yesterday", "01/03/2025", "2025-13-01"} {
			_, err := ParseDatetime(in)
			require.Error(t, err, in)
		}
	})
}

func TestObjectLookup(t *testing.T) {
	o := newObject("", map[string]json.RawMessage{
		"SESSIONID": json.RawMessage(`"upper"`),
		"SessionId": json.RawMessage(`"mixed"`),
		"sessionid": json.RawMessage(`"lower"`),
	})

	t.Run("case variants resolve to the same key every time", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			v, ok := o.lookup("sessionId")
			require.True(t, ok)
			assert.JSONEq(t, `"upper"`, string(v))
		}
	})

	t.Run("exact match beats case variants", func(t *testing.T) {
		v, ok := o.lookup("SessionId")
		require.True(t, ok)
		assert.JSONEq(t, `"mixed"`, string(v))
	})

	t.Run("missing key", func(t *testing.T) {
		_, ok := o.lookup("user")
		assert.False(t, ok)
	})
}
