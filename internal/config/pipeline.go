package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Pipeline lists the tool steps executed against the alive targets
type Pipeline struct {
	Steps           []string `yaml:"steps" json:"steps"`
	Concurrency     int      `yaml:"concurrency" json:"concurrency"`
	ContinueOnError bool     `yaml:"continue_on_error" json:"continue_on_error"`
}

// DefaultPipeline is used when config/pipeline.yaml is absent
func DefaultPipeline() Pipeline {
	return Pipeline{
		Steps:           []string{"httpx", "nmap"},
		Concurrency:     4,
		ContinueOnError: true,
	}
}

// rawPipeline keeps steps untyped so a scalar or mapping is reported
// instead of silently coerced.
type rawPipeline struct {
	Steps           any   `yaml:"steps"`
	Concurrency     *int  `yaml:"concurrency"`
	ContinueOnError *bool `yaml:"continue_on_error"`
}

func parsePipeline(data []byte) (*Pipeline, error) {
	var raw rawPipeline
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	p := DefaultPipeline()
	p.Steps = nil

	switch steps := raw.Steps.(type) {
	case nil:
	case []any:
		for i, s := range steps {
			name, ok := s.(string)
			if !ok {
				return nil, ErrInvalidPipeline(fmt.Sprintf("steps[%d] must be a string, got %T", i, s))
			}
			p.Steps = append(p.Steps, name)
		}
	default:
		return nil, ErrInvalidPipeline(fmt.Sprintf("steps must be a list, got %T", raw.Steps))
	}

	if raw.Concurrency != nil {
		p.Concurrency = *raw.Concurrency
	}
	if raw.ContinueOnError != nil {
		p.ContinueOnError = *raw.ContinueOnError
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate performs basic validation on the pipeline
func (p *Pipeline) Validate() error {
	for i, s := range p.Steps {
		if s == "" {
			return ErrInvalidPipeline(fmt.Sprintf("steps[%d] is empty", i))
		}
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	return nil
}
