package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ParseLines returns the trimmed lines of r, skipping blanks and '#' comments.
func ParseLines(r io.Reader) ([]string, error) {
	var lines []string
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, s.Err()
}

// ReadLines reads a target list from disk. A missing file is an empty list;
// an unreadable one is logged and also treated as empty.
func ReadLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.WithError(err).WithField("path", path).Warn("Cannot read target list")
		}
		return nil
	}

	lines, err := ParseLines(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Target list truncated")
	}
	return lines
}

// File is a LineSource backed by a local text file.
type File struct {
	Path string
}

// NewFile creates a file-backed source.
func NewFile(path string) *File { return &File{Path: path} }

// Lines implements domain.LineSource.
func (f *File) Lines(ctx context.Context) ([]string, error) {
	return ReadLines(f.Path), nil
}
