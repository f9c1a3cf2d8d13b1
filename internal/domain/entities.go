package domain

// SourceKind names one of the target sources the aggregator merges.
type SourceKind string

const (
	SourceRemote        SourceKind = "remote"
	SourceLocal         SourceKind = "local"
	SourceSubmitted     SourceKind = "submitted"
	SourceAutoDiscovery SourceKind = "autodiscovery"
)

// EmptyReason explains why a run stopped before tool execution.
type EmptyReason string

const (
	EmptyNone      EmptyReason = ""
	EmptyNoTargets EmptyReason = "no_targets"
	EmptyNoAlive   EmptyReason = "no_alive"
)

// AggregationSummary is what the aggregation stage hands back to the orchestrator.
type AggregationSummary struct {
	Remote        int `json:"remote"`
	Local         int `json:"local"`
	Submitted     int `json:"submitted"`
	AutoDiscovery int `json:"autodiscovery"`
	RawAll        int `json:"raw_all"`

	Expanded []string `json:"expanded"`
	Alive    []string `json:"alive"`

	// ProbeMethod is the liveness strategy that produced Alive ("fping", "nmap", "tcp" or "").
	ProbeMethod string `json:"probe_method,omitempty"`
}

// Empty reports the terminal condition, if any, that must stop the run
// before tools are invoked.
func (s AggregationSummary) Empty() EmptyReason {
	if s.RawAll == 0 {
		return EmptyNoTargets
	}
	if len(s.Alive) == 0 {
		return EmptyNoAlive
	}
	return EmptyNone
}

// RunContext carries the values available to {{var}} placeholders.
type RunContext map[string]string

// RunID returns the run identifier stored in the context.
func (c RunContext) RunID() string { return c["run_id"] }

// Dedupe drops repeated items, keeping the first occurrence of each.
func Dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
