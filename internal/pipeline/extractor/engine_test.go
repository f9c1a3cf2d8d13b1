package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bytemomo/autopen/internal/domain"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Entry {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return log.NewEntry(l)
}

func newTestEngine(workers int) *Engine {
	e := NewEngine(workers, quietLogger())
	e.Now = func() time.Time { return fixedNow }
	return e
}

func writeOutput(t *testing.T, runDir, rel, content string) {
	t.Helper()
	path := filepath.Join(runDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

var rc = domain.RunContext{"run_id": "r1"}

func TestRun_RecordStream(t *testing.T) {
	runDir := t.TempDir()
	writeOutput(t, runDir, "02-scan/_global/httpx.jsonl", `{"url":"http://10.0.0.5","title":"Login","status_code":200}
not json
{"url":"http://10.0.0.6","status_code":404}

{"host":"10.0.0.7"}
`)

	specs := []domain.RuleSpec{{
		ID:   "httpx",
		Type: "jsonl",
		Glob: "02-scan/_global/httpx*.jsonl",
		Fields: map[string]any{
			"tool":   "'httpx'",
			"url":    "url",
			"title":  "title",
			"status": "status_code",
			"note":   "'run {{run_id}}'",
		},
	}}

	res, err := newTestEngine(2).Run(context.Background(), runDir, specs, rc)
	require.NoError(t, err)
	require.Len(t, res.Findings, 2)

	assert.Equal(t, "http://10.0.0.5", res.Findings[0].Asset)
	assert.Equal(t, "Login", res.Findings[0].Summary)
	assert.Equal(t, "run r1", res.Findings[0].Extra["note"])
	assert.True(t, res.Findings[0].Partial)

	assert.Equal(t, "http://10.0.0.6", res.Findings[1].Asset)
	assert.Equal(t, "404", res.Findings[1].Summary)

	assert.Equal(t, 1, res.Stats.LinesSkipped)
	assert.Equal(t, 3, res.Stats.Items)
	// the third record maps no url
	assert.Equal(t, 1, res.Stats.Dropped)
}

func TestRun_RecordSelectorYieldsMany(t *testing.T) {
	runDir := t.TempDir()
	writeOutput(t, runDir, "scan/nuclei.json", `{"host":"a.lan","results":[{"name":"CVE-1","sev":"high"},null,{"name":"CVE-2"}]}
{"host":"b.lan","results":[]}
`)

	specs := []domain.RuleSpec{{
		ID:         "nuclei",
		Type:       "ndjson",
		Glob:       "scan/*.json",
		RecordJMES: "results",
		Fields: map[string]any{
			"tool":     "'nuclei'",
			"asset":    "'a.lan'",
			"summary":  "name",
			"severity": "sev",
		},
	}}

	res, err := newTestEngine(1).Run(context.Background(), runDir, specs, rc)
	require.NoError(t, err)
	require.Len(t, res.Findings, 2)
	assert.Equal(t, "CVE-1", res.Findings[0].Summary)
	assert.Equal(t, "high", res.Findings[0].Severity)
	assert.Equal(t, "CVE-2", res.Findings[1].Summary)
	assert.Equal(t, domain.SeverityUnknown, res.Findings[1].Severity)
}

const nmapXML = `<?xml version="1.0"?>
<nmaprun scanner="nmap">
  <host>
    <address addr="10.0.0.5" addrtype="ipv4"/>
    <ports>
      <port protocol="tcp" portid="22"><state state="open"/><service name="ssh"/></port>
      <port protocol="tcp" portid="80"><state state="open"/><service name="http"/></port>
    </ports>
  </host>
  <host>
    <address addr="10.0.0.6" addrtype="ipv4"/>
    <ports>
      <port protocol="udp" portid="161"><state state="open"/><service name="snmp"/></port>
    </ports>
  </host>
</nmaprun>
`

func TestRun_Tree(t *testing.T) {
	runDir := t.TempDir()
	writeOutput(t, runDir, "02-scan/_global/nmap.xml", nmapXML)

	specs := []domain.RuleSpec{{
		ID:          "nmap",
		Type:        "xml",
		Glob:        "02-scan/_global/nmap*.xml",
		RecordXPath: "host/ports/port",
		Fields: map[string]any{
			"tool":    "'nmap'",
			"host":    "../../address/@addr",
			"port":    "number(@portid)",
			"proto":   "@protocol",
			"service": "service/@name",
			"broken":  "((",
		},
	}}

	res, err := newTestEngine(4).Run(context.Background(), runDir, specs, rc)
	require.NoError(t, err)
	require.Len(t, res.Findings, 3)

	first := res.Findings[0]
	assert.Equal(t, "nmap", first.Tool)
	assert.Equal(t, "10.0.0.5", first.Asset)
	assert.Equal(t, "ssh", first.Summary)
	assert.Equal(t, 22.0, first.Extra["port"])
	assert.Equal(t, "tcp", first.Extra["proto"])
	assert.Nil(t, first.Extra["broken"])

	assert.Equal(t, "http", res.Findings[1].Summary)
	assert.Equal(t, "10.0.0.6", res.Findings[2].Asset)
	assert.Equal(t, "snmp", res.Findings[2].Summary)

	// "((" fails to compile, once per item
	assert.Equal(t, 3, res.Stats.FieldErrors)
}

func TestRun_TreeAbsolutePaths(t *testing.T) {
	runDir := t.TempDir()
	writeOutput(t, runDir, "scan/nmap.xml", nmapXML)

	specs := []domain.RuleSpec{
		{
			ID:          "a-absolute-selector",
			Type:        "xml",
			Glob:        "scan/*.xml",
			RecordXPath: "/nmaprun/host/ports/port",
			Fields: map[string]any{
				"tool":    "'nmap'",
				"asset":   "../../address/@addr",
				"summary": "service/@name",
			},
		},
		{
			ID:          "b-absolute-field",
			Type:        "xml",
			Glob:        "scan/*.xml",
			RecordXPath: "//port",
			Fields: map[string]any{
				"tool":    "'nmap'",
				"asset":   "/nmaprun/host/address/@addr",
				"summary": "@portid",
				"scanner": "/nmaprun/@scanner",
			},
		},
	}

	res, err := newTestEngine(2).Run(context.Background(), runDir, specs, rc)
	require.NoError(t, err)
	require.Len(t, res.Findings, 6)
	assert.Zero(t, res.Stats.Dropped)

	assert.Equal(t, "10.0.0.5", res.Findings[0].Asset)
	assert.Equal(t, "ssh", res.Findings[0].Summary)
	assert.Equal(t, "10.0.0.6", res.Findings[2].Asset)
	assert.Equal(t, "snmp", res.Findings[2].Summary)

	// an absolute node-set query yields its first node
	assert.Equal(t, "10.0.0.5", res.Findings[3].Asset)
	assert.Equal(t, "22", res.Findings[3].Summary)
	assert.Equal(t, "nmap", res.Findings[3].Extra["scanner"])
}

func TestRun_TreeNonFiniteNumbers(t *testing.T) {
	runDir := t.TempDir()
	writeOutput(t, runDir, "scan/ports.xml", `<nmaprun>
  <port addr="10.0.0.1" portid="22"/>
  <port addr="10.0.0.2"/>
</nmaprun>
`)

	specs := []domain.RuleSpec{{
		ID:          "ports",
		Type:        "xml",
		Glob:        "scan/*.xml",
		RecordXPath: "port",
		Fields: map[string]any{
			"tool":    "'nmap'",
			"asset":   "@addr",
			"summary": "'open'",
			"port":    "number(@portid)",
			"ratio":   "1 div 0",
		},
	}}

	res, err := newTestEngine(1).Run(context.Background(), runDir, specs, rc)
	require.NoError(t, err)
	require.Len(t, res.Findings, 2)

	assert.Equal(t, 22.0, res.Findings[0].Extra["port"])
	assert.Nil(t, res.Findings[1].Extra["port"])
	assert.Nil(t, res.Findings[0].Extra["ratio"])
	// ratio on both items, port on the second
	assert.Equal(t, 3, res.Stats.FieldErrors)

	for _, f := range res.Findings {
		_, err := f.MarshalJSON()
		require.NoError(t, err)
	}
}

func TestRun_MalformedFileDoesNotHideOthers(t *testing.T) {
	runDir := t.TempDir()
	writeOutput(t, runDir, "out/a.xml", "garbage <<< not xml")
	writeOutput(t, runDir, "out/b.xml", nmapXML)

	specs := []domain.RuleSpec{{
		ID:          "nmap",
		Type:        "xml",
		Glob:        "out/*.xml",
		RecordXPath: "//port",
		Fields: map[string]any{
			"tool":  "'nmap'",
			"asset": "ancestor::host/address/@addr",
			"title": "@portid",
		},
	}}

	res, err := newTestEngine(2).Run(context.Background(), runDir, specs, rc)
	require.NoError(t, err)
	assert.Len(t, res.Findings, 3)
	assert.Equal(t, 2, res.Stats.Files)
	assert.Equal(t, 1, res.Stats.FilesSkipped)
}

func TestRun_RuleAndFileOrdering(t *testing.T) {
	runDir := t.TempDir()
	for _, name := range []string{"c", "a", "b"} {
		writeOutput(t, runDir, "s/"+name+".jsonl", `{"h":"`+name+`"}`+"\n")
	}

	mk := func(id string) domain.RuleSpec {
		return domain.RuleSpec{
			ID:     id,
			Type:   "ndjson",
			Glob:   "s/*.jsonl",
			Fields: map[string]any{"tool": "'" + id + "'", "asset": "h", "summary": "'x'"},
		}
	}
	specs := []domain.RuleSpec{mk("zeta"), mk("alpha")}

	for _, workers := range []int{1, 8} {
		res, err := newTestEngine(workers).Run(context.Background(), runDir, specs, rc)
		require.NoError(t, err)

		var got []string
		for _, f := range res.Findings {
			got = append(got, f.Tool+":"+f.Asset)
		}
		assert.Equal(t, []string{"alpha:a", "alpha:b", "alpha:c", "zeta:a", "zeta:b", "zeta:c"}, got)
	}
}

func TestRun_SkippedRules(t *testing.T) {
	runDir := t.TempDir()
	writeOutput(t, runDir, "x.jsonl", `{"a":1}`+"\n")

	specs := []domain.RuleSpec{
		{ID: "unknown", Type: "csv", Glob: "*.csv"},
		{ID: "noglob", Type: "ndjson"},
		{ID: "badselector", Type: "ndjson", Glob: "*.jsonl", RecordJMES: "[[["},
		{ID: "noxpath", Type: "xml", Glob: "*.xml"},
		{ID: "decode", Err: assert.AnError},
	}

	res, err := newTestEngine(1).Run(context.Background(), runDir, specs, rc)
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Equal(t, 5, res.Stats.Rules)
	assert.Equal(t, 5, res.Stats.RulesSkipped)
	assert.Equal(t, 5, res.Stats.Skipped()["rule"])
}

func TestRun_NoMatchesIsEmpty(t *testing.T) {
	res, err := newTestEngine(1).Run(context.Background(), t.TempDir(), []domain.RuleSpec{{
		ID: "httpx", Type: "ndjson", Glob: "nothing/*.jsonl",
	}}, rc)
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Zero(t, res.Stats.Files)
}

func TestCompileExpression(t *testing.T) {
	lit := compileExpression("'nmap'", nil)
	assert.Equal(t, Literal, lit.Kind)
	assert.Equal(t, "nmap", lit.Text)

	short := compileExpression("'", (&recordStream{}).compile)
	assert.Equal(t, Query, short.Kind)

	num := compileExpression(42, (&recordStream{}).compile)
	_, err := num.Evaluate(map[string]any{}, nil)
	assert.Error(t, err)
}
