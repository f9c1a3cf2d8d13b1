// Package aggregator merges every target source, expands the union into
// concrete hosts and keeps the ones that respond. Each stage is persisted
// as a snapshot for auditing.
package aggregator

import (
	"context"
	"fmt"
	"sort"

	"bytemomo/autopen/internal/domain"
	"bytemomo/autopen/internal/pipeline/expander"

	log "github.com/sirupsen/logrus"
)

// Snapshot file names written under the aggregation directory.
const (
	SnapshotAll      = "raw_all.txt"
	SnapshotExpanded = "expanded.txt"
	SnapshotAlive    = "alive.txt"
)

// SnapshotName returns the raw snapshot file for a source kind.
func SnapshotName(kind domain.SourceKind) string {
	return "raw_" + string(kind) + ".txt"
}

// Prober reduces hosts to the responsive subset.
type Prober interface {
	Alive(ctx context.Context, hosts []string) ([]string, string)
}

// Source pairs a line source with the kind it is reported under.
type Source struct {
	Kind   domain.SourceKind
	Reader domain.LineSource
}

// Aggregator runs the collection, expansion and liveness stages.
type Aggregator struct {
	Sources   []Source
	Prober    Prober
	Snapshots domain.SnapshotWriter
	Log       *log.Entry
}

// New creates an aggregator over the given sources.
func New(sources []Source, prober Prober, snapshots domain.SnapshotWriter, logger *log.Entry) *Aggregator {
	return &Aggregator{
		Sources:   sources,
		Prober:    prober,
		Snapshots: snapshots,
		Log:       logger.WithField("stage", "aggregation"),
	}
}

// Run collects all sources and returns the aggregation summary. An empty
// union is not an error: expansion and probing are skipped, empty
// expanded/alive snapshots are written, and the summary reports it.
// Only snapshot persistence failures are returned as errors.
func (a *Aggregator) Run(ctx context.Context) (*domain.AggregationSummary, error) {
	summary := &domain.AggregationSummary{
		Expanded: []string{},
		Alive:    []string{},
	}

	var union []string
	for _, src := range a.Sources {
		lines := a.collect(ctx, src)
		setCount(summary, src.Kind, len(lines))
		union = append(union, lines...)

		if err := a.Snapshots.WriteLines(SnapshotName(src.Kind), lines); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", src.Kind, err)
		}
	}

	rawAll := sortedUnique(union)
	summary.RawAll = len(rawAll)
	if err := a.Snapshots.WriteLines(SnapshotAll, rawAll); err != nil {
		return nil, fmt.Errorf("snapshot raw union: %w", err)
	}

	if len(rawAll) > 0 {
		summary.Expanded = expander.Expand(rawAll)
		if err := a.Snapshots.WriteLines(SnapshotExpanded, summary.Expanded); err != nil {
			return nil, fmt.Errorf("snapshot expanded: %w", err)
		}

		summary.Alive, summary.ProbeMethod = a.Prober.Alive(ctx, summary.Expanded)
		if summary.Alive == nil {
			summary.Alive = []string{}
		}
	} else if err := a.Snapshots.WriteLines(SnapshotExpanded, nil); err != nil {
		return nil, fmt.Errorf("snapshot expanded: %w", err)
	}

	if err := a.Snapshots.WriteLines(SnapshotAlive, summary.Alive); err != nil {
		return nil, fmt.Errorf("snapshot alive: %w", err)
	}

	a.Log.WithFields(log.Fields{
		"remote":        summary.Remote,
		"local":         summary.Local,
		"submitted":     summary.Submitted,
		"autodiscovery": summary.AutoDiscovery,
		"raw_all":       summary.RawAll,
		"expanded":      len(summary.Expanded),
		"alive":         len(summary.Alive),
		"probe":         summary.ProbeMethod,
	}).Info("Aggregation complete")

	return summary, nil
}

func (a *Aggregator) collect(ctx context.Context, src Source) []string {
	if src.Reader == nil {
		return nil
	}
	lines, err := src.Reader.Lines(ctx)
	if err != nil {
		a.Log.WithError(err).WithField("source", src.Kind).Warn("Source unavailable, continuing without it")
		return nil
	}
	return lines
}

func setCount(s *domain.AggregationSummary, kind domain.SourceKind, n int) {
	switch kind {
	case domain.SourceRemote:
		s.Remote += n
	case domain.SourceLocal:
		s.Local += n
	case domain.SourceSubmitted:
		s.Submitted += n
	case domain.SourceAutoDiscovery:
		s.AutoDiscovery += n
	}
}

func sortedUnique(items []string) []string {
	out := domain.Dedupe(items)
	sort.Strings(out)
	return out
}
