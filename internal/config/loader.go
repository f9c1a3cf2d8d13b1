package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader provides functionality to load and validate configuration files
type Loader struct {
	basePath string
	getenv   func(string) string
}

// NewLoader creates a new configuration loader rooted at the autopen home
func NewLoader(basePath string) *Loader {
	if basePath == "" {
		basePath = "."
	}
	return &Loader{
		basePath: basePath,
		getenv:   os.Getenv,
	}
}

// WithEnv replaces the environment lookup, mainly for tests
func (l *Loader) WithEnv(getenv func(string) string) *Loader {
	l.getenv = getenv
	return l
}

// Paths returns the directory layout under the loader's base path
func (l *Loader) Paths() Paths {
	return Paths{Home: l.basePath}
}

// LoadSettings loads config/autopen.yaml (optional), applies environment
// overrides and defaults, and validates the result
func (l *Loader) LoadSettings() (*Settings, error) {
	settings := DefaultSettings()
	fullPath := l.Paths().SettingsFile()

	data, err := l.readFile(fullPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, NewSettingsLoadError(fullPath, "failed to read settings", err)
	default:
		data = l.expandEnvVars(data)
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, NewSettingsLoadError(fullPath, "failed to parse settings", err)
		}
	}

	l.applyEnvOverrides(&settings)
	l.setSettingsDefaults(&settings)

	if err := settings.Validate(); err != nil {
		return nil, NewSettingsLoadError(fullPath, "validation failed", err)
	}

	return &settings, nil
}

// LoadPipeline loads config/pipeline.yaml. A missing file yields the default
// pipeline; a malformed one is an error for the tool stage.
func (l *Loader) LoadPipeline() (*Pipeline, error) {
	fullPath := l.Paths().PipelineFile()

	data, err := l.readFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		p := DefaultPipeline()
		return &p, nil
	}
	if err != nil {
		return nil, NewPipelineLoadError(fullPath, "failed to read pipeline", err)
	}

	p, err := parsePipeline(l.expandEnvVars(data))
	if err != nil {
		return nil, NewPipelineLoadError(fullPath, "invalid pipeline", err)
	}
	return p, nil
}

// LoadRemote resolves the remote target list location from config/ftp.yaml,
// falling back to FTP_* environment variables. An unconfigured remote is not
// an error: the returned source is simply disabled.
func (l *Loader) LoadRemote() (RemoteSource, error) {
	fullPath := l.Paths().RemoteFile()

	data, err := l.readFile(fullPath)
	if err == nil {
		remote, perr := parseRemote(l.expandEnvVars(data))
		if perr != nil {
			// Reported to the caller but the env fallback still applies.
			return l.remoteFromEnv(), NewRemoteLoadError(fullPath, "failed to parse remote source", perr)
		}
		if remote.Enabled() {
			return remote, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return l.remoteFromEnv(), NewRemoteLoadError(fullPath, "failed to read remote source", err)
	}

	return l.remoteFromEnv(), nil
}

// LoadPlugin loads plugins.d/<name>.yaml. Only image is environment
// expanded.
func (l *Loader) LoadPlugin(name string) (*Plugin, error) {
	fullPath := l.Paths().PluginFile(name)

	data, err := l.readFile(fullPath)
	if err != nil {
		return nil, NewPluginLoadError(fullPath, "plugin not found", err)
	}

	// cmd runs through sh -c, which expands its own $variables.
	var plugin Plugin
	if err := yaml.Unmarshal(data, &plugin); err != nil {
		return nil, NewPluginLoadError(fullPath, "failed to parse plugin", err)
	}
	plugin.Name = name
	plugin.Image = os.Expand(plugin.Image, l.getenv)

	if err := plugin.Validate(); err != nil {
		return nil, NewPluginLoadError(fullPath, "validation failed", err)
	}
	return &plugin, nil
}

func (l *Loader) remoteFromEnv() RemoteSource {
	host := l.getenv("FTP_HOST")
	if host == "" {
		return RemoteSource{}
	}
	return RemoteSource{
		Host:     host,
		User:     firstNonEmpty(l.getenv("FTP_USER"), AnonymousUser),
		Password: firstNonEmpty(l.getenv("FTP_PASS"), AnonymousPassword),
		Path:     firstNonEmpty(l.getenv("FTP_PATH"), DefaultRemotePath),
		Protocol: firstNonEmpty(l.getenv("FTP_PROTO"), DefaultRemoteProtocol),
	}
}

func (l *Loader) applyEnvOverrides(s *Settings) {
	if v := l.getenv("AUTO_DISCOVERY"); v != "" {
		enabled := v == "1" || strings.EqualFold(v, "true")
		s.AutoDiscovery = &enabled
	}
	if v := l.getenv("AUTOPEN_LOG_LEVEL"); v != "" {
		s.Log.Level = v
	}
	if v := l.getenv("NATS_URL"); v != "" {
		s.Notify.NatsURL = v
	}
}

// resolvePath resolves a path relative to the loader's base path
func (l *Loader) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.basePath, path)
}

// readFile reads a file and returns its contents
func (l *Loader) readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// expandEnvVars expands environment variables in the configuration data
func (l *Loader) expandEnvVars(data []byte) []byte {
	return []byte(os.Expand(string(data), l.getenv))
}

// setSettingsDefaults fills zero values left by a partial settings file
func (l *Loader) setSettingsDefaults(s *Settings) {
	defaults := DefaultSettings()

	if s.Log.Level == "" {
		s.Log.Level = defaults.Log.Level
	}
	if s.AutoDiscovery == nil {
		s.AutoDiscovery = defaults.AutoDiscovery
	}
	if s.Probe.Method == "" {
		s.Probe.Method = defaults.Probe.Method
	}
	if s.Probe.FpingPath == "" {
		s.Probe.FpingPath = defaults.Probe.FpingPath
	}
	if s.Probe.FpingArgs == "" {
		s.Probe.FpingArgs = defaults.Probe.FpingArgs
	}
	if s.Probe.Port == 0 {
		s.Probe.Port = defaults.Probe.Port
	}
	if s.Probe.Timeout == 0 {
		s.Probe.Timeout = defaults.Probe.Timeout
	}
	if s.Probe.Workers == 0 {
		s.Probe.Workers = defaults.Probe.Workers
	}
	if s.Extraction.RulesDir == "" {
		s.Extraction.RulesDir = l.Paths().RulesDir()
	}
	s.Extraction.RulesDir = l.resolvePath(s.Extraction.RulesDir)
	if s.Extraction.Workers == 0 {
		s.Extraction.Workers = defaults.Extraction.Workers
	}
	if s.Notify.Subject == "" {
		s.Notify.Subject = defaults.Notify.Subject
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// LoaderError represents a configuration loading error
type LoaderError struct {
	Type    string
	Path    string
	Message string
	Cause   error
}

func (e LoaderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (caused by: %v)", e.Type, e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Type, e.Path, e.Message)
}

func (e LoaderError) Unwrap() error {
	return e.Cause
}

// Helper functions for creating specific errors
func NewSettingsLoadError(path, message string, cause error) error {
	return LoaderError{Type: "settings", Path: path, Message: message, Cause: cause}
}

func NewPipelineLoadError(path, message string, cause error) error {
	return LoaderError{Type: "pipeline", Path: path, Message: message, Cause: cause}
}

func NewRemoteLoadError(path, message string, cause error) error {
	return LoaderError{Type: "remote", Path: path, Message: message, Cause: cause}
}

func NewPluginLoadError(path, message string, cause error) error {
	return LoaderError{Type: "plugin", Path: path, Message: message, Cause: cause}
}
