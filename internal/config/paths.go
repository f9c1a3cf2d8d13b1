package config

import "path/filepath"

// DefaultHome is used when AUTOPEN_HOME is unset.
const DefaultHome = "/workspace"

// Paths is the on-disk layout under the autopen home.
type Paths struct {
	Home string
}

func (p Paths) join(elem ...string) string {
	return filepath.Join(append([]string{p.Home}, elem...)...)
}

func (p Paths) SettingsFile() string  { return p.join("config", "autopen.yaml") }
func (p Paths) TargetsFile() string   { return p.join("config", "targets.txt") }
func (p Paths) RemoteFile() string    { return p.join("config", "ftp.yaml") }
func (p Paths) PipelineFile() string  { return p.join("config", "pipeline.yaml") }
func (p Paths) SubmittedFile() string { return p.join("data", "incoming", "targets_tg.txt") }
func (p Paths) PluginsDir() string    { return p.join("plugins.d") }
func (p Paths) RulesDir() string      { return p.join("parsers.d") }
func (p Paths) OutDir() string        { return p.join("out") }
func (p Paths) LockFile() string      { return p.join("out", ".run.lock") }
func (p Paths) MetricsFile() string   { return p.join("metrics", "autopen.prom") }

// PluginFile returns plugins.d/<name>.yaml
func (p Paths) PluginFile(name string) string {
	return filepath.Join(p.PluginsDir(), name+".yaml")
}

// RunDir returns out/<runID>
func (p Paths) RunDir(runID string) string {
	return filepath.Join(p.OutDir(), runID)
}
