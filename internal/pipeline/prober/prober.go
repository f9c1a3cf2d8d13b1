// Package prober reduces an expanded target list to the hosts that answer.
package prober

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bytemomo/autopen/internal/config"
	"bytemomo/autopen/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Sweeper checks many hosts in one external invocation. An error means the
// sweep itself could not run, not that hosts were unreachable.
type Sweeper interface {
	Name() string
	Sweep(ctx context.Context, hosts []string) ([]string, error)
}

// Prober runs the configured sweeper and falls back to TCP connect probing
// when the sweep cannot be invoked.
type Prober struct {
	Primary  Sweeper
	Fallback Sweeper
	Log      *log.Entry
}

// New builds a prober from the probe settings.
func New(cfg config.ProbeSettings, logger *log.Entry) (*Prober, error) {
	logger = logger.WithField("component", "prober")

	fallback := &TCP{Port: cfg.Port, Timeout: cfg.Timeout, Workers: cfg.Workers}

	var primary Sweeper
	switch strings.ToLower(cfg.Method) {
	case config.ProbeMethodFping, "":
		args, err := cfg.Args()
		if err != nil {
			return nil, fmt.Errorf("fping args: %w", err)
		}
		primary = &Fping{Path: cfg.FpingPath, Args: args, Log: logger}
	case config.ProbeMethodNmap:
		primary = &Nmap{Timeout: 10 * time.Minute, Log: logger}
	default:
		return nil, fmt.Errorf("unknown probe method: %s", cfg.Method)
	}

	return &Prober{Primary: primary, Fallback: fallback, Log: logger}, nil
}

// Alive returns the responsive subset of hosts, deduplicated in first-seen
// order, together with the name of the strategy that produced it. Empty
// input returns immediately without invoking anything.
func (p *Prober) Alive(ctx context.Context, hosts []string) ([]string, string) {
	if len(hosts) == 0 {
		return []string{}, ""
	}

	if p.Primary != nil {
		alive, err := p.Primary.Sweep(ctx, hosts)
		if err == nil {
			alive = domain.Dedupe(alive)
			p.Log.WithFields(log.Fields{
				"method": p.Primary.Name(),
				"hosts":  len(hosts),
				"alive":  len(alive),
			}).Info("Liveness sweep complete")
			return alive, p.Primary.Name()
		}
		p.Log.WithError(err).WithField("method", p.Primary.Name()).Warn("Liveness sweep unavailable, falling back to TCP connect")
	}

	if p.Fallback == nil {
		return []string{}, ""
	}

	alive, err := p.Fallback.Sweep(ctx, hosts)
	if err != nil {
		p.Log.WithError(err).Error("TCP fallback failed")
		return []string{}, p.Fallback.Name()
	}
	alive = domain.Dedupe(alive)
	p.Log.WithFields(log.Fields{
		"method": p.Fallback.Name(),
		"hosts":  len(hosts),
		"alive":  len(alive),
	}).Info("Liveness probe complete")
	return alive, p.Fallback.Name()
}
