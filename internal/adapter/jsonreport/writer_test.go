package jsonreport

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"bytemomo/autopen/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFindings(t *testing.T) {
	w := New(t.TempDir())
	findings := []domain.Finding{
		{Tool: "httpx", Asset: "http://a/?x=<b>&y", Summary: "Login", Severity: "unknown", RunID: "r", TS: "t", Partial: true, Extra: map[string]any{"status": 200.0}},
		{Tool: "nmap", Asset: "10.0.0.5", Summary: "ssh", Severity: "info", RunID: "r", TS: "t"},
		{Tool: "nmap", Asset: "10.0.0.5", Summary: "ssh", Severity: "info", RunID: "r", TS: "t"},
	}

	path, err := w.WriteFindings(findings)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.RunDir, "03-merge", "findings_merged.ndjson"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"asset":"http://a/?x=<b>&y"`)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []domain.Finding
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var fd domain.Finding
		require.NoError(t, json.Unmarshal(sc.Bytes(), &fd))
		got = append(got, fd)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, findings, got)
}

func TestWriteFindings_Empty(t *testing.T) {
	w := New(t.TempDir())
	path, err := w.WriteFindings(nil)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSnapshots(t *testing.T) {
	w := New(t.TempDir())
	s := w.Snapshots()

	require.NoError(t, s.WriteLines("alive.txt", []string{"10.0.0.1", "10.0.0.2"}))
	require.NoError(t, s.WriteLines("expanded.txt", nil))

	b, err := os.ReadFile(filepath.Join(w.RunDir, "01-aggregated", "alive.txt"))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1\n10.0.0.2\n", string(b))

	b, err = os.ReadFile(filepath.Join(w.RunDir, "01-aggregated", "expanded.txt"))
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestWriteMeta(t *testing.T) {
	w := New(t.TempDir())
	path, err := w.WriteMeta(domain.RunMeta{RunID: "r1", TS: "2025-01-01T00:00:00Z", Initiator: "cli"})
	require.NoError(t, err)

	var meta map[string]string
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &meta))
	assert.Equal(t, map[string]string{"run_id": "r1", "ts": "2025-01-01T00:00:00Z", "initiator": "cli"}, meta)
}
