package domain

import "context"

// LineSource yields raw target expressions from one origin.
type LineSource interface {
	// Lines returns trimmed, non-empty, non-comment lines.
	Lines(ctx context.Context) ([]string, error)
}

// FindingWriter persists the merged findings.
type FindingWriter interface {
	// WriteFindings stores findings and returns the artifact path.
	WriteFindings(findings []Finding) (string, error)
}

// SnapshotWriter persists newline-delimited audit snapshots.
type SnapshotWriter interface {
	WriteLines(name string, lines []string) error
}

// RuleLoader lists the extraction rules available to a run.
type RuleLoader interface {
	// LoadRules returns one spec per rule file, sorted by ID. Malformed
	// files are returned with Err set so they can be counted.
	LoadRules() ([]RuleSpec, error)
}
