package extractor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jmespath/go-jmespath"
)

const maxRecordLine = 16 * 1024 * 1024

// recordStream treats every line of a file as an independent JSON value.
type recordStream struct {
	selector *jmespath.JMESPath
}

func newRecordStream(expr string) (*recordStream, error) {
	if strings.TrimSpace(expr) == "" {
		expr = "@"
	}
	sel, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("record_jmes: %w", err)
	}
	return &recordStream{selector: sel}, nil
}

func (s *recordStream) compile(query string) (evalFunc, error) {
	q, err := jmespath.Compile(query)
	if err != nil {
		return nil, err
	}
	return func(item any) (any, error) {
		return q.Search(item)
	}, nil
}

// items streams the selected records of path to emit, counting lines that
// are not JSON or on which the selector fails.
func (s *recordStream) items(path string, stats *Stats, emit func(any)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxRecordLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var raw any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			stats.LinesSkipped++
			continue
		}

		base, err := s.search(raw)
		if err != nil {
			stats.LinesSkipped++
			continue
		}

		if list, ok := base.([]any); ok {
			for _, it := range list {
				if it != nil {
					emit(it)
				}
			}
			continue
		}
		if base != nil {
			emit(base)
		}
	}
	if err := sc.Err(); err != nil {
		// The rest of the file is unreadable; what was read stands.
		stats.LinesSkipped++
	}
	return nil
}

func (s *recordStream) search(raw any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("record_jmes: %v", r)
		}
	}()
	return s.selector.Search(raw)
}
