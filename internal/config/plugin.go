package config

import (
	"strings"
	"time"
)

// Plugin describes how one scanning tool is invoked
type Plugin struct {
	Name    string        `yaml:"-" json:"name"`
	Image   string        `yaml:"image,omitempty" json:"image,omitempty"`
	Cmd     string        `yaml:"cmd" json:"cmd"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Validate performs basic validation on the plugin
func (p *Plugin) Validate() error {
	if strings.TrimSpace(p.Cmd) == "" {
		return ErrInvalidPlugin(p.Name, "cmd is required")
	}
	if p.Timeout < 0 {
		return ErrInvalidPlugin(p.Name, "timeout cannot be negative")
	}
	return nil
}

// Render substitutes {{key}} placeholders in the command template
func (p *Plugin) Render(vars map[string]string) string {
	pairs := make([]string, 0, 2*(len(vars)+1))
	pairs = append(pairs, "{{image}}", p.Image)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(p.Cmd)
}
