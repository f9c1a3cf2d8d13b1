package jsonreport

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"bytemomo/autopen/internal/domain"
)

// Run directory layout.
const (
	MetaDir       = "00-meta"
	AggregatedDir = "01-aggregated"
	ScanDir       = "02-scan"
	MergeDir      = "03-merge"

	FindingsFile = "findings_merged.ndjson"
)

// Writer persists the artifacts of one run under RunDir.
type Writer struct {
	RunDir string // e.g., /workspace/out/<run_id>
}

func New(runDir string) *Writer { return &Writer{RunDir: runDir} }

// FindingsPath is where WriteFindings stores the merged findings.
func (w *Writer) FindingsPath() string {
	return filepath.Join(w.RunDir, MergeDir, FindingsFile)
}

// WriteFindings implements domain.FindingWriter: one JSON object per line,
// in the order given.
func (w *Writer) WriteFindings(findings []domain.Finding) (string, error) {
	path := w.FindingsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, finding := range findings {
		if err := enc.Encode(finding); err != nil {
			return "", err
		}
	}
	if err := bw.Flush(); err != nil {
		return "", err
	}
	return path, f.Sync()
}

// WriteMeta stores 00-meta/meta.json.
func (w *Writer) WriteMeta(meta domain.RunMeta) (string, error) {
	path := filepath.Join(w.RunDir, MetaDir, "meta.json")
	return path, writeJSON(path, meta)
}

// WriteAggregation stores the aggregation summary next to the snapshots.
func (w *Writer) WriteAggregation(s *domain.AggregationSummary) (string, error) {
	path := filepath.Join(w.RunDir, AggregatedDir, "summary.json")
	return path, writeJSON(path, s)
}

// WriteReport stores the final run report.
func (w *Writer) WriteReport(r *domain.RunReport) (string, error) {
	path := filepath.Join(w.RunDir, MetaDir, "report.json")
	return path, writeJSON(path, r)
}

// Snapshots returns the snapshot writer for the aggregation stage.
func (w *Writer) Snapshots() *Snapshots {
	return &Snapshots{Dir: filepath.Join(w.RunDir, AggregatedDir)}
}

// Snapshots writes newline-delimited text files into Dir.
type Snapshots struct {
	Dir string
}

// WriteLines implements domain.SnapshotWriter. An empty list produces an
// empty file.
func (s *Snapshots) WriteLines(name string, lines []string) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	return os.WriteFile(filepath.Join(s.Dir, name), []byte(content), 0o644)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
