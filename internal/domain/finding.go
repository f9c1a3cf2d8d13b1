package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// SeverityUnknown is stamped on findings whose tool did not report a severity.
const SeverityUnknown = "unknown"

// Core finding keys. Everything else a rule maps travels in Finding.Extra.
const (
	FieldTool     = "tool"
	FieldAsset    = "asset"
	FieldSummary  = "summary"
	FieldSeverity = "severity"
	FieldRunID    = "run_id"
	FieldTS       = "ts"
	FieldPartial  = "partial"
)

// Finding is a normalized security finding extracted from tool output.
type Finding struct {
	Tool     string
	Asset    string
	Summary  string
	Severity string
	RunID    string
	TS       string
	// Partial is true when Asset or Summary was synthesized from fallback fields.
	Partial bool
	// Extra holds tool-specific pass-through fields (port, url, cve, template_id...).
	Extra map[string]any
}

// Valid reports whether the finding carries every required field.
func (f Finding) Valid() bool {
	return f.Tool != "" && f.Asset != "" && f.Summary != ""
}

// MarshalJSON flattens the core fields and Extra into a single object.
func (f Finding) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(f.Extra)+7)
	for k, v := range f.Extra {
		m[k] = finite(v)
	}
	m[FieldTool] = f.Tool
	m[FieldAsset] = f.Asset
	m[FieldSummary] = f.Summary
	m[FieldSeverity] = f.Severity
	m[FieldRunID] = f.RunID
	m[FieldTS] = f.TS
	m[FieldPartial] = f.Partial

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// finite replaces NaN and infinities, which JSON cannot carry, with null.
func finite(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = finite(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = finite(e)
		}
		return out
	}
	return v
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (f *Finding) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	*f = Finding{}
	f.Tool = Stringify(m[FieldTool])
	f.Asset = Stringify(m[FieldAsset])
	f.Summary = Stringify(m[FieldSummary])
	f.Severity = Stringify(m[FieldSeverity])
	f.RunID = Stringify(m[FieldRunID])
	f.TS = Stringify(m[FieldTS])
	if p, ok := m[FieldPartial].(bool); ok {
		f.Partial = p
	}

	for _, k := range []string{FieldTool, FieldAsset, FieldSummary, FieldSeverity, FieldRunID, FieldTS, FieldPartial} {
		delete(m, k)
	}
	if len(m) > 0 {
		f.Extra = m
	}
	return nil
}

// Stringify renders a decoded JSON/XPath value as a plain string.
// Nil becomes the empty string; integral numbers drop their decimals.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}

// Truthy mirrors the loose "is this value present" test used by the soft schema:
// nil, "", false, 0 and empty collections are absent.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
