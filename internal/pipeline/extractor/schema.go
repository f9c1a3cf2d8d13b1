package extractor

import (
	"time"

	"bytemomo/autopen/internal/domain"
)

// TimestampLayout is ISO-8601 UTC with microseconds and a Z suffix.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

var (
	assetFallbacks   = []string{"url", "host", "ip", "domain"}
	summaryFallbacks = []string{"title", "service", "status"}
)

// defaultSummary is used when no summary fallback exists but the record
// still carries something.
const defaultSummary = "finding"

var coreFields = map[string]struct{}{
	domain.FieldTool:     {},
	domain.FieldAsset:    {},
	domain.FieldSummary:  {},
	domain.FieldSeverity: {},
	domain.FieldRunID:    {},
	domain.FieldTS:       {},
	domain.FieldPartial:  {},
}

// Complete applies the soft schema to a mapped record and reports whether
// the result is emittable (tool, asset and summary all present).
func Complete(fields map[string]any, rc domain.RunContext, now time.Time) (domain.Finding, bool) {
	f := domain.Finding{
		Tool:     domain.Stringify(fields[domain.FieldTool]),
		Severity: domain.Stringify(fields[domain.FieldSeverity]),
		RunID:    domain.Stringify(fields[domain.FieldRunID]),
		TS:       domain.Stringify(fields[domain.FieldTS]),
	}

	if v := fields[domain.FieldAsset]; domain.Truthy(v) {
		f.Asset = domain.Stringify(v)
	} else if v, ok := firstTruthy(fields, assetFallbacks); ok {
		f.Asset = domain.Stringify(v)
		f.Partial = true
	}

	if v := fields[domain.FieldSummary]; domain.Truthy(v) {
		f.Summary = domain.Stringify(v)
	} else if v, ok := firstTruthy(fields, summaryFallbacks); ok {
		f.Summary = domain.Stringify(v)
		f.Partial = true
	} else if hasOtherValue(fields) {
		f.Summary = defaultSummary
		f.Partial = true
	}

	if f.Severity == "" {
		f.Severity = domain.SeverityUnknown
	}
	if f.RunID == "" {
		f.RunID = rc.RunID()
	}
	if f.TS == "" {
		f.TS = now.UTC().Format(TimestampLayout)
	}

	for k, v := range fields {
		if _, core := coreFields[k]; core {
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]any, len(fields))
		}
		f.Extra[k] = v
	}

	return f, f.Valid()
}

func firstTruthy(fields map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v := fields[k]; domain.Truthy(v) {
			return v, true
		}
	}
	return nil, false
}

// hasOtherValue reports whether anything besides the summary itself and
// the stamped bookkeeping fields is present.
func hasOtherValue(fields map[string]any) bool {
	for k, v := range fields {
		switch k {
		case domain.FieldSummary, domain.FieldRunID, domain.FieldTS, domain.FieldPartial:
			continue
		}
		if domain.Truthy(v) {
			return true
		}
	}
	return false
}
