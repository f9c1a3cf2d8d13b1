package domain

// RuleSpec is one parsers.d/*.yaml file as written on disk, before its
// expressions are compiled.
type RuleSpec struct {
	// ID is the file name stem; rules run in lexicographic ID order.
	ID   string `yaml:"-"`
	Path string `yaml:"-"`

	Type        string         `yaml:"type"`
	Glob        string         `yaml:"glob"`
	RecordJMES  string         `yaml:"record_jmes"`
	RecordXPath string         `yaml:"record_xpath"`
	Fields      map[string]any `yaml:"fields"`

	// Err is set when the file could not be read or decoded.
	Err error `yaml:"-"`
}
