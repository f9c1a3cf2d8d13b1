package prober

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Fping sweeps hosts with fping, feeding targets on stdin.
//
// fping exits 1 when some hosts are unreachable and 2 when some names do
// not resolve; both still produce a valid alive list on stdout. Anything
// above 2 is an invocation failure.
type Fping struct {
	Path string
	Args []string
	Log  *log.Entry
}

func (f *Fping) Name() string { return "fping" }

// Sweep implements Sweeper.
func (f *Fping) Sweep(ctx context.Context, hosts []string) ([]string, error) {
	path := f.Path
	if path == "" {
		path = "fping"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, f.Args...)
	cmd.Stdin = strings.NewReader(strings.Join(hosts, "\n") + "\n")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("start %s: %w", path, err)
		}
		if code := exitErr.ExitCode(); code < 0 || code > 2 {
			return nil, fmt.Errorf("%s exited with %d: %s", path, code, strings.TrimSpace(stderr.String()))
		}
		if f.Log != nil {
			f.Log.WithField("exit_code", exitErr.ExitCode()).Debug("fping reported unreachable hosts")
		}
	}

	return parseAliveOutput(stdout.String()), nil
}

// parseAliveOutput takes the first token of each non-empty line, which
// covers both plain -a output and the "host is alive" format.
func parseAliveOutput(out string) []string {
	var alive []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		alive = append(alive, fields[0])
	}
	return alive
}
