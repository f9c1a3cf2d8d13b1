package usecase

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bytemomo/autopen/internal/config"
	"bytemomo/autopen/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoProber struct{ calls int }

func (p *echoProber) Alive(_ context.Context, hosts []string) ([]string, string) {
	p.calls++
	return hosts, "fake"
}

type recordingNotifier struct {
	mu      sync.Mutex
	reports []domain.RunReport
}

func (n *recordingNotifier) Notify(_ context.Context, r *domain.RunReport) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, *r)
	return nil
}

type testHome struct {
	t    *testing.T
	home string
}

func newTestHome(t *testing.T) *testHome {
	return &testHome{t: t, home: t.TempDir()}
}

func (h *testHome) write(rel, content string) {
	h.t.Helper()
	path := filepath.Join(h.home, rel)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
}

func (h *testHome) orchestrator(out *bytes.Buffer, prober *echoProber, tools *fakeTools, n *recordingNotifier) *Orchestrator {
	h.t.Helper()
	loader := config.NewLoader(h.home).WithEnv(func(string) string { return "" })
	settings, err := loader.LoadSettings()
	require.NoError(h.t, err)

	return &Orchestrator{
		Loader:   loader,
		Settings: settings,
		Out:      out,
		Log:      testLogger(),
		Now:      time.Now,
		Prober:   prober,
		Tools:    tools,
		Notifier: n,
	}
}

// writeHostsTool emits one ndjson record per alive host, the way a real
// scanner plugin drops its output under 02-scan.
func writeHostsTool(vars map[string]string) error {
	alive, err := os.ReadFile(vars["alive_file"])
	if err != nil {
		return err
	}
	dir := filepath.Join(vars["run_dir"], "02-scan", "fake")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var b strings.Builder
	for _, host := range strings.Fields(string(alive)) {
		b.WriteString(`{"host":"` + host + `","title":"Open port"}` + "\n")
	}
	return os.WriteFile(filepath.Join(dir, "out.ndjson"), []byte(b.String()), 0o644)
}

func readNDJSON(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	s := bufio.NewScanner(f)
	for s.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(s.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, s.Err())
	return out
}

func TestOrchestrator_FullRun(t *testing.T) {
	h := newTestHome(t)
	h.write("config/targets.txt", "# lab\n10.0.0.0/30\n")
	h.write("config/pipeline.yaml", "steps: [fake]\nconcurrency: 1\ncontinue_on_error: true\n")
	h.write("plugins.d/fake.yaml", "cmd: fake {{alive_file}}\n")
	h.write("parsers.d/fake.yaml", `
type: ndjson
glob: "02-scan/fake/*.ndjson"
fields:
  tool: "'fake'"
  asset: host
  summary: title
`)

	var out bytes.Buffer
	prober := &echoProber{}
	notifier := &recordingNotifier{}
	o := h.orchestrator(&out, prober, &fakeTools{run: writeHostsTool}, notifier)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, report.Status)
	assert.Equal(t, 2, report.Findings)
	assert.Empty(t, report.StepErrors)
	require.NotNil(t, report.Aggregation)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, report.Aggregation.Alive)
	assert.Equal(t, 1, prober.calls)

	findings := readNDJSON(t, report.FindingsPath)
	require.Len(t, findings, 2)
	assert.Equal(t, "10.0.0.1", findings[0]["asset"])
	assert.Equal(t, "Open port", findings[0]["summary"])
	assert.Equal(t, "fake", findings[0]["tool"])
	assert.Equal(t, report.RunID, findings[0]["run_id"])

	progress := out.String()
	assert.Contains(t, progress, "[01] aggregation: local=1 ftp=0 submitted=0 autodiscovery=0 raw_all=1 alive=2")
	assert.Contains(t, progress, "[02.01] fake: ok")
	assert.Contains(t, progress, "[03] merge: parsed=2")

	prom, err := os.ReadFile(filepath.Join(h.home, "metrics", "autopen.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "autopen_findings_total 2")
	assert.Contains(t, string(prom), "autopen_targets_alive 2")

	assert.FileExists(t, filepath.Join(report.RunDir, "00-meta", "meta.json"))
	assert.FileExists(t, filepath.Join(report.RunDir, "00-meta", "report.json"))
	assert.FileExists(t, filepath.Join(report.RunDir, "01-aggregated", "raw_local.txt"))
	assert.NoFileExists(t, filepath.Join(h.home, "out", ".run.lock"))

	require.Len(t, notifier.reports, 1)
	assert.Equal(t, report.RunID, notifier.reports[0].RunID)
}

func TestOrchestrator_NoTargets(t *testing.T) {
	h := newTestHome(t)

	var out bytes.Buffer
	prober := &echoProber{}
	tools := &fakeTools{}
	o := h.orchestrator(&out, prober, tools, &recordingNotifier{})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunEmpty, report.Status)
	assert.Equal(t, domain.EmptyNoTargets, report.EmptyReason)
	assert.Zero(t, prober.calls)
	assert.Empty(t, tools.calls)
	assert.Contains(t, out.String(), "raw_all=0 alive=0")
	assert.NotContains(t, out.String(), "[02]")

	prom, err := os.ReadFile(filepath.Join(h.home, "metrics", "autopen.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `reason="no_targets"`)
	assert.NoFileExists(t, filepath.Join(h.home, "out", ".run.lock"))
}

func TestOrchestrator_Locked(t *testing.T) {
	h := newTestHome(t)
	h.write("out/.run.lock", `{"run_id":"other","created_at":"x","pid":1}`)

	o := h.orchestrator(&bytes.Buffer{}, &echoProber{}, &fakeTools{}, &recordingNotifier{})
	report, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, IsLocked(err))
	assert.FileExists(t, filepath.Join(h.home, "out", ".run.lock"))
}

func TestOrchestrator_StepAbort(t *testing.T) {
	h := newTestHome(t)
	h.write("config/targets.txt", "10.0.0.7\n")
	h.write("config/pipeline.yaml", "steps: [bad, never]\ncontinue_on_error: false\n")
	h.write("plugins.d/bad.yaml", "cmd: bad\n")
	h.write("plugins.d/never.yaml", "cmd: never\n")

	tools := &fakeTools{fail: map[string]error{"bad": errors.New("exit 4")}}
	notifier := &recordingNotifier{}
	o := h.orchestrator(&bytes.Buffer{}, &echoProber{}, tools, notifier)

	report, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepAborted)

	assert.Equal(t, domain.RunFailed, report.Status)
	assert.Equal(t, []string{"bad"}, tools.calls)
	require.Len(t, report.StepErrors, 1)
	assert.NoFileExists(t, filepath.Join(report.RunDir, "03-merge", "findings_merged.ndjson"))
	assert.NoFileExists(t, filepath.Join(h.home, "out", ".run.lock"))

	require.Len(t, notifier.reports, 1)
	assert.Equal(t, domain.RunFailed, notifier.reports[0].Status)
}

func TestOrchestrator_InvalidPipeline(t *testing.T) {
	h := newTestHome(t)
	h.write("config/targets.txt", "10.0.0.7\n")
	h.write("config/pipeline.yaml", "steps: nmap\n")

	tools := &fakeTools{}
	o := h.orchestrator(&bytes.Buffer{}, &echoProber{}, tools, &recordingNotifier{})

	report, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, report.Status)
	assert.Empty(t, tools.calls)
}

type staticRules []domain.RuleSpec

func (s staticRules) LoadRules() ([]domain.RuleSpec, error) { return s, nil }

type failingSink struct{}

func (failingSink) WriteFindings([]domain.Finding) (string, error) {
	return "", errors.New("disk full")
}

func TestOrchestrator_InjectedRules(t *testing.T) {
	h := newTestHome(t)
	h.write("config/targets.txt", "10.0.0.9\n")
	h.write("config/pipeline.yaml", "steps: [fake]\n")
	h.write("plugins.d/fake.yaml", "cmd: fake\n")

	o := h.orchestrator(&bytes.Buffer{}, &echoProber{}, &fakeTools{run: writeHostsTool}, &recordingNotifier{})
	o.Rules = staticRules{{
		ID:     "fake",
		Type:   "ndjson",
		Glob:   "02-scan/fake/*.ndjson",
		Fields: map[string]any{"tool": "'fake'", "asset": "host", "summary": "title"},
	}}

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, report.Status)
	assert.Equal(t, 1, report.Findings)
}

func TestOrchestrator_MergeFailure(t *testing.T) {
	var out bytes.Buffer
	o := &Orchestrator{Out: &out, Log: testLogger()}

	_, err := o.merge(failingSink{}, []domain.Finding{{Tool: "t", Asset: "a", Summary: "s"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, out.String())
}
