package extractor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bytemomo/autopen/internal/domain"
)

// Kind is the record selection mode of a rule.
type Kind string

const (
	// RecordStream reads line-delimited JSON and selects with JMESPath.
	RecordStream Kind = "record-stream"
	// Tree reads XML documents and selects with XPath.
	Tree Kind = "tree"
)

// ParseKind maps a rule's type to its Kind.
func ParseKind(t string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "ndjson", "jsonl", "json-lines":
		return RecordStream, nil
	case "xml":
		return Tree, nil
	default:
		return "", fmt.Errorf("unsupported rule type %q", t)
	}
}

// selector is the per-kind half of a rule: how items are pulled out of a
// file and how queries are compiled against them.
type selector interface {
	compile(query string) (evalFunc, error)
	items(path string, stats *Stats, emit func(any)) error
}

// Field is one entry of a rule's field map.
type Field struct {
	Name string
	Expr Expression
}

// Rule is a compiled extraction rule.
type Rule struct {
	ID     string
	Kind   Kind
	Glob   string
	Fields []Field

	sel selector
}

// Compile validates a rule spec and compiles its selector and fields.
// Field queries that fail to compile do not fail the rule.
func Compile(spec domain.RuleSpec) (*Rule, error) {
	if spec.Err != nil {
		return nil, spec.Err
	}

	kind, err := ParseKind(spec.Type)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.Glob) == "" {
		return nil, fmt.Errorf("glob is required")
	}

	r := &Rule{ID: spec.ID, Kind: kind, Glob: spec.Glob}

	switch kind {
	case RecordStream:
		r.sel, err = newRecordStream(spec.RecordJMES)
	case Tree:
		r.sel, err = newXMLTree(spec.RecordXPath)
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(spec.Fields))
	for name := range spec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.Fields = append(r.Fields, Field{Name: name, Expr: compileExpression(spec.Fields[name], r.sel.compile)})
	}

	return r, nil
}

// FileResult is what one rule produced from one file.
type FileResult struct {
	Findings []domain.Finding
	Stats    Stats
}

// ExtractFile applies the rule to a single file. It never fails: an
// unreadable file is counted and yields nothing.
func (r *Rule) ExtractFile(path string, rc domain.RunContext, now time.Time) FileResult {
	var res FileResult
	res.Stats.Files = 1

	err := r.sel.items(path, &res.Stats, func(item any) {
		res.Stats.Items++

		mapped := make(map[string]any, len(r.Fields))
		for _, f := range r.Fields {
			v, err := f.Expr.Evaluate(item, rc)
			if err != nil {
				res.Stats.FieldErrors++
				v = nil
			}
			mapped[f.Name] = v
		}

		finding, ok := Complete(mapped, rc, now)
		if !ok {
			res.Stats.Dropped++
			return
		}
		res.Findings = append(res.Findings, finding)
	})
	if err != nil {
		res.Stats.FilesSkipped++
	}
	return res
}
