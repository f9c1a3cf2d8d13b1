package prober

import (
	"context"
	"fmt"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	log "github.com/sirupsen/logrus"
)

// Nmap sweeps hosts with an nmap ping scan (-sn).
type Nmap struct {
	BinaryPath string
	Timeout    time.Duration
	Log        *log.Entry
}

func (n *Nmap) Name() string { return "nmap" }

// Sweep implements Sweeper. Results follow the input order and carry the
// host as it was given (hostname or address).
func (n *Nmap) Sweep(ctx context.Context, hosts []string) ([]string, error) {
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	opts := []nmap.Option{
		nmap.WithTargets(hosts...),
		nmap.WithPingScan(),
	}
	if n.BinaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(n.BinaryPath))
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create nmap scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("run nmap: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 && n.Log != nil {
		n.Log.WithField("warnings", *warnings).Warn("Nmap ping scan produced warnings")
	}

	up := make(map[string]struct{})
	for _, h := range result.Hosts {
		if !strings.EqualFold(h.Status.State, "up") {
			continue
		}
		for _, a := range h.Addresses {
			up[a.Addr] = struct{}{}
		}
		for _, hn := range h.Hostnames {
			up[strings.ToLower(hn.Name)] = struct{}{}
		}
	}

	return filterInOrder(hosts, up), nil
}

func filterInOrder(hosts []string, up map[string]struct{}) []string {
	var alive []string
	for _, h := range hosts {
		if _, ok := up[h]; ok {
			alive = append(alive, h)
			continue
		}
		if _, ok := up[strings.ToLower(h)]; ok {
			alive = append(alive, h)
		}
	}
	return alive
}
