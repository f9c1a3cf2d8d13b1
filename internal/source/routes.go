package source

import (
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"os/exec"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CommandFunc runs an external command and returns its stdout.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecCommand is the CommandFunc backed by os/exec.
func ExecCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Routes discovers the networks directly attached to this host from the
// kernel routing table.
type Routes struct {
	Run CommandFunc
	Log *log.Entry
}

// NewRoutes creates a route-table source that shells out to `ip -o route`.
func NewRoutes(logger *log.Entry) *Routes {
	return &Routes{Run: ExecCommand, Log: logger.WithField("source", "autodiscovery")}
}

// Lines implements domain.LineSource. Failures yield no networks.
func (r *Routes) Lines(ctx context.Context) ([]string, error) {
	out, err := r.Run(ctx, "ip", "-o", "route")
	if err != nil {
		r.Log.WithError(err).Warn("Route discovery failed")
		if len(out) == 0 {
			return nil, nil
		}
	}
	nets := ParseRoutes(string(out))
	r.Log.WithField("networks", nets).Debug("Discovered attached networks")
	return nets, nil
}

// ParseRoutes extracts link-scope destinations from `ip -o route` output,
// deduplicated and sorted.
func ParseRoutes(output string) []string {
	seen := map[string]struct{}{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "default", "unreachable", "blackhole", "prohibit", "throw", "local", "broadcast", "multicast":
			continue
		}
		if !hasLinkScope(fields) {
			continue
		}

		dst := fields[0]
		if _, err := netip.ParsePrefix(dst); err != nil {
			if _, err := netip.ParseAddr(dst); err != nil {
				continue
			}
		}
		seen[dst] = struct{}{}
	}

	nets := make([]string, 0, len(seen))
	for n := range seen {
		nets = append(nets, n)
	}
	sort.Strings(nets)
	return nets
}

func hasLinkScope(fields []string) bool {
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "scope" && fields[i+1] == "link" {
			return true
		}
	}
	return false
}
