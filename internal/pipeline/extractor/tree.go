package extractor

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// xmlTree parses each file as one document. The record selector starts at
// the root element; absolute paths in the selector and in field queries
// resolve against the document.
type xmlTree struct {
	selector *xpath.Expr
}

func newXMLTree(expr string) (*xmlTree, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("record_xpath is required")
	}
	sel, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("record_xpath: %w", err)
	}
	return &xmlTree{selector: sel}, nil
}

func (t *xmlTree) compile(query string) (evalFunc, error) {
	q, err := xpath.Compile(query)
	if err != nil {
		return nil, err
	}
	// Expr.Evaluate mutates the compiled query; files of one rule are
	// extracted concurrently.
	var mu sync.Mutex
	return func(item any) (any, error) {
		nav, ok := item.(xpath.NodeNavigator)
		if !ok {
			return nil, fmt.Errorf("xpath item is %T, not a node", item)
		}
		v := func() any {
			mu.Lock()
			defer mu.Unlock()
			// node-set results iterate the shared query
			return xpathValue(q.Evaluate(nav.Copy()))
		}()
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return nil, fmt.Errorf("xpath %q: non-finite number", query)
		}
		return v, nil
	}, nil
}

func (t *xmlTree) items(path string, stats *Stats, emit func(any)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return err
	}
	root := rootNavigator(doc)
	if root == nil {
		return fmt.Errorf("no root element")
	}

	nodes, err := t.query(root)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		emit(n)
	}
	return nil
}

func (t *xmlTree) query(root xpath.NodeNavigator) (nodes []xpath.NodeNavigator, err error) {
	defer func() {
		if r := recover(); r != nil {
			nodes, err = nil, fmt.Errorf("record_xpath: %v", r)
		}
	}()
	iter := t.selector.Select(root)
	for iter.MoveNext() {
		nodes = append(nodes, iter.Current().Copy())
	}
	return nodes, nil
}

// rootNavigator returns a navigator rooted at doc and positioned on its
// root element.
func rootNavigator(doc *xmlquery.Node) xpath.NodeNavigator {
	nav := xmlquery.CreateXPathNavigator(doc)
	if !nav.MoveToChild() {
		return nil
	}
	for {
		if nav.Current().Type == xmlquery.ElementNode {
			return nav
		}
		if !nav.MoveToNext() {
			return nil
		}
	}
}

// xpathValue reduces an XPath result to a plain value: scalars pass
// through, node sets yield their first node (attribute value, text, or an
// element's leading text) and empty node sets yield nil.
func xpathValue(v any) any {
	iter, ok := v.(*xpath.NodeIterator)
	if !ok {
		return v
	}
	if !iter.MoveNext() {
		return nil
	}

	nav := iter.Current().Copy()
	switch nav.NodeType() {
	case xpath.ElementNode:
		if !nav.MoveToChild() || nav.NodeType() != xpath.TextNode {
			return nil
		}
		if text := strings.TrimSpace(nav.Value()); text != "" {
			return text
		}
		return nil
	default:
		return nav.Value()
	}
}
