package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/shlex"
	log "github.com/sirupsen/logrus"
)

const (
	ProbeMethodFping = "fping"
	ProbeMethodNmap  = "nmap"
)

// Settings holds the tunables read from config/autopen.yaml
type Settings struct {
	Log           LogSettings        `yaml:"log" json:"log"`
	AutoDiscovery *bool              `yaml:"auto_discovery,omitempty" json:"auto_discovery,omitempty"`
	Probe         ProbeSettings      `yaml:"probe" json:"probe"`
	Extraction    ExtractionSettings `yaml:"extraction" json:"extraction"`
	Notify        NotifySettings     `yaml:"notify" json:"notify"`
}

// LogSettings defines logging configuration
type LogSettings struct {
	Level string `yaml:"level,omitempty" json:"level,omitempty"` // debug, info, warn, error
}

// ProbeSettings configures the liveness sweep and its TCP fallback
type ProbeSettings struct {
	Method    string        `yaml:"method,omitempty" json:"method,omitempty"` // fping, nmap
	FpingPath string        `yaml:"fping_path,omitempty" json:"fping_path,omitempty"`
	FpingArgs string        `yaml:"fping_args,omitempty" json:"fping_args,omitempty"`
	Port      int           `yaml:"port,omitempty" json:"port,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Workers   int           `yaml:"workers,omitempty" json:"workers,omitempty"`
}

// ExtractionSettings configures the finding extraction engine
type ExtractionSettings struct {
	// RulesDir defaults to <home>/parsers.d; relative paths resolve against home.
	RulesDir string `yaml:"rules_dir,omitempty" json:"rules_dir,omitempty"`
	Workers  int    `yaml:"workers,omitempty" json:"workers,omitempty"`
}

// NotifySettings configures the run report publisher
type NotifySettings struct {
	NatsURL string `yaml:"nats_url,omitempty" json:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty" json:"subject,omitempty"`
}

// DefaultSettings returns the settings used when no file is present
func DefaultSettings() Settings {
	enabled := true
	return Settings{
		Log:           LogSettings{Level: "info"},
		AutoDiscovery: &enabled,
		Probe: ProbeSettings{
			Method:    ProbeMethodFping,
			FpingPath: "fping",
			FpingArgs: "-a -q",
			Port:      80,
			Timeout:   time.Second,
			Workers:   64,
		},
		Extraction: ExtractionSettings{
			Workers: 4,
		},
		Notify: NotifySettings{
			Subject: "autopen.runs",
		},
	}
}

// AutoDiscoveryEnabled reports whether route-table discovery should run
func (s *Settings) AutoDiscoveryEnabled() bool {
	return s.AutoDiscovery == nil || *s.AutoDiscovery
}

// LogLevel returns the parsed log level
func (s *Settings) LogLevel() log.Level {
	level, err := log.ParseLevel(s.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Validate performs basic validation on the settings
func (s *Settings) Validate() error {
	if _, err := log.ParseLevel(s.Log.Level); err != nil {
		return ErrInvalidSettings(fmt.Sprintf("log.level %q is not a valid level", s.Log.Level))
	}

	switch strings.ToLower(s.Probe.Method) {
	case ProbeMethodFping, ProbeMethodNmap:
	default:
		return ErrInvalidSettings("probe.method must be 'fping' or 'nmap'")
	}

	if _, err := s.Probe.Args(); err != nil {
		return ErrInvalidSettings(fmt.Sprintf("probe.fping_args: %v", err))
	}

	if s.Probe.Port <= 0 || s.Probe.Port > 65535 {
		return ErrInvalidSettings("probe.port must be between 1 and 65535")
	}

	if s.Probe.Workers < 0 || s.Extraction.Workers < 0 {
		return ErrInvalidSettings("worker counts cannot be negative")
	}

	return nil
}

// Args splits the fping argument string the way a shell would
func (p ProbeSettings) Args() ([]string, error) {
	return shlex.Split(p.FpingArgs)
}

// Error types
type ConfigError struct {
	Type    string
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

func ErrInvalidSettings(msg string) error {
	return ConfigError{Type: "invalid_settings", Message: msg}
}

func ErrInvalidPipeline(msg string) error {
	return ConfigError{Type: "invalid_pipeline", Message: msg}
}

func ErrInvalidPlugin(name, msg string) error {
	if name != "" {
		msg = "plugin '" + name + "': " + msg
	}
	return ConfigError{Type: "invalid_plugin", Message: msg}
}
