package extractor

// Stats counts what an extraction pass processed and everything it skipped.
type Stats struct {
	Rules        int `json:"rules"`
	RulesSkipped int `json:"rules_skipped"`
	Files        int `json:"files"`
	FilesSkipped int `json:"files_skipped"`
	LinesSkipped int `json:"lines_skipped"`
	Items        int `json:"items"`
	Dropped      int `json:"dropped"`
	FieldErrors  int `json:"field_errors"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Rules += o.Rules
	s.RulesSkipped += o.RulesSkipped
	s.Files += o.Files
	s.FilesSkipped += o.FilesSkipped
	s.LinesSkipped += o.LinesSkipped
	s.Items += o.Items
	s.Dropped += o.Dropped
	s.FieldErrors += o.FieldErrors
}

// Skipped breaks the skip counters down by kind.
func (s Stats) Skipped() map[string]int {
	return map[string]int{
		"rule":    s.RulesSkipped,
		"file":    s.FilesSkipped,
		"line":    s.LinesSkipped,
		"dropped": s.Dropped,
		"field":   s.FieldErrors,
	}
}
