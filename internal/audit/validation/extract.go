package validation

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"fcp-audit/internal/audit/models"
)

// maxSafeInteger mirrors the largest integer a JSON producer can round-trip
// through a double.
const maxSafeInteger = 1<<53 - 1

// object is one JSON object level with case-insensitive key lookup. Producers
// send both camelCase (sessionId) and flat lowercase (sessionid) keys.
type object struct {
	path   string
	fields map[string]json.RawMessage
}

func newObject(path string, fields map[string]json.RawMessage) object {
	return object{path: path, fields: fields}
}

func (o object) key(name string) string {
	if o.path == "" {
		return name
	}
	return o.path + "." + name
}

// lookup prefers an exact key match and falls back to a case-insensitive one.
// Among several case variants the lexically smallest key wins.
func (o object) lookup(name string) (json.RawMessage, bool) {
	if v, ok := o.fields[name]; ok {
		return v, true
	}
	match, found := "", false
	for k := range o.fields {
		if strings.EqualFold(k, name) && (!found || k < match) {
			match, found = k, true
		}
	}
	if !found {
		return nil, false
	}
	return o.fields[match], true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// extractor turns a raw object into typed values, recording type violations
// and which paths were sent. It never stops early.
type extractor struct {
	violations []string
	present    map[string]bool
	// failed holds paths that already have a type violation so the
	// constraint pass does not report them twice.
	failed map[string]bool
}

func newExtractor() *extractor {
	return &extractor{present: make(map[string]bool), failed: make(map[string]bool)}
}

func (x *extractor) add(msg string) {
	x.violations = append(x.violations, msg)
}

func (x *extractor) fail(path, msg string) {
	x.failed[path] = true
	x.add(quote(path) + msg)
}

// str reads a string field. Absent yields "" for the constraint engine to
// judge; null or any other JSON type is a violation.
func (x *extractor) str(o object, name string) string {
	raw, ok := o.lookup(name)
	if !ok {
		return ""
	}
	path := o.key(name)
	x.present[path] = true

	var s string
	if isNull(raw) || json.Unmarshal(raw, &s) != nil {
		x.fail(path, " must be a string")
		return ""
	}
	return s
}

// optStr reads an optional, non-nullable string. nil means not sent.
func (x *extractor) optStr(o object, name string) *string {
	if _, ok := o.lookup(name); !ok {
		return nil
	}
	s := x.str(o, name)
	return &s
}

// obj reads a nested object as a tri-state block.
func (x *extractor) obj(o object, name string) models.Block[object] {
	raw, ok := o.lookup(name)
	if !ok {
		return models.AbsentBlock[object]()
	}
	path := o.key(name)
	x.present[path] = true
	if isNull(raw) {
		return models.NullBlock[object]()
	}

	var fields map[string]json.RawMessage
	if !isObject(raw) || json.Unmarshal(raw, &fields) != nil {
		x.fail(path, " must be of type object")
		return models.AbsentBlock[object]()
	}
	return models.PresentBlock(newObject(path, fields))
}

// freeform reads a nested object without inspecting its keys.
func (x *extractor) freeform(o object, name string) map[string]any {
	out := map[string]any{}
	raw, ok := o.lookup(name)
	if !ok {
		return out
	}
	path := o.key(name)
	x.present[path] = true
	if !isObject(raw) || json.Unmarshal(raw, &out) != nil {
		x.fail(path, " must be of type object")
		return map[string]any{}
	}
	return out
}

// integer reads a required integer. Integral floats (3.0) are accepted.
func (x *extractor) integer(o object, name string) int64 {
	path := o.key(name)
	raw, ok := o.lookup(name)
	if !ok {
		x.add(quote(path) + " is required")
		return 0
	}
	x.present[path] = true

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if isNull(raw) || dec.Decode(&n) != nil {
		x.fail(path, " must be a number")
		return 0
	}
	if i, err := n.Int64(); err == nil {
		if i > maxSafeInteger || i < -maxSafeInteger {
			x.fail(path, " must be a safe number")
			return 0
		}
		return i
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		x.fail(path, " must be a safe number")
		return 0
	}
	if f != math.Trunc(f) {
		x.fail(path, " must be an integer")
		return 0
	}
	if math.Abs(f) > maxSafeInteger {
		x.fail(path, " must be a safe number")
		return 0
	}
	return int64(f)
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

func quote(path string) string {
	return `"` + path + `"`
}
