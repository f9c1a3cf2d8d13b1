package domain

import "time"

// RunStatus is the final state of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunEmpty     RunStatus = "empty"
	RunFailed    RunStatus = "failed"
)

// StepError records a tool step that did not finish cleanly.
type StepError struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// RunMeta is persisted as 00-meta/meta.json when a run starts.
type RunMeta struct {
	RunID     string `json:"run_id"`
	TS        string `json:"ts"`
	Initiator string `json:"initiator"`
}

// RunReport summarizes a finished run for metrics and notification.
type RunReport struct {
	RunID       string      `json:"run_id"`
	Status      RunStatus   `json:"status"`
	EmptyReason EmptyReason `json:"empty_reason,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	RunDir      string      `json:"run_dir"`

	Aggregation *AggregationSummary `json:"aggregation,omitempty"`
	StepErrors  []StepError         `json:"step_errors,omitempty"`

	Findings     int            `json:"findings"`
	FindingsPath string         `json:"findings_path,omitempty"`
	Skipped      map[string]int `json:"skipped,omitempty"`

	Error string `json:"error,omitempty"`
}
