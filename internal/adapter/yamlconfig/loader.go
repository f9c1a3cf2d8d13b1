package yamlconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bytemomo/autopen/internal/domain"

	"gopkg.in/yaml.v3"
)

// RuleDir loads extraction rules from a parsers.d directory.
type RuleDir struct {
	Dir string
}

func New(dir string) *RuleDir { return &RuleDir{Dir: dir} }

// LoadRules implements domain.RuleLoader. A missing directory means no rules.
func (r *RuleDir) LoadRules() ([]domain.RuleSpec, error) {
	paths, err := filepath.Glob(filepath.Join(r.Dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		if _, statErr := os.Stat(r.Dir); statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
			return nil, statErr
		}
	}

	specs := make([]domain.RuleSpec, 0, len(paths))
	for _, p := range paths {
		specs = append(specs, LoadRule(p))
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs, nil
}

// LoadRule reads a single rule file. Failures are reported through Err.
func LoadRule(path string) domain.RuleSpec {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	b, err := os.ReadFile(path)
	if err != nil {
		return domain.RuleSpec{ID: id, Path: path, Err: err}
	}

	var spec domain.RuleSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return domain.RuleSpec{ID: id, Path: path, Err: fmt.Errorf("decode %s: %w", filepath.Base(path), err)}
	}
	spec.ID = id
	spec.Path = path
	return spec
}
