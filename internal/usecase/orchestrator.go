package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"bytemomo/autopen/internal/adapter/cliplugin"
	"bytemomo/autopen/internal/adapter/jsonreport"
	"bytemomo/autopen/internal/adapter/metrics"
	"bytemomo/autopen/internal/adapter/notify"
	"bytemomo/autopen/internal/adapter/yamlconfig"
	"bytemomo/autopen/internal/config"
	"bytemomo/autopen/internal/domain"
	"bytemomo/autopen/internal/pipeline/aggregator"
	"bytemomo/autopen/internal/pipeline/extractor"
	"bytemomo/autopen/internal/pipeline/prober"
	"bytemomo/autopen/internal/source"

	log "github.com/sirupsen/logrus"
)

// Orchestrator coordinates one run: aggregation, tool steps, extraction
// and merge, then metrics and notification.
type Orchestrator struct {
	Loader   *config.Loader
	Settings *config.Settings
	Out      io.Writer // progress lines
	Log      *log.Entry
	Now      func() time.Time

	Remote   domain.LineSource // nil when no remote list is configured
	Routes   domain.LineSource
	Prober   aggregator.Prober
	Tools    ToolRunner
	Notifier notify.Notifier
	// Rules defaults to the configured rules directory.
	Rules domain.RuleLoader

	// OpenRunLog is called once the run directory exists and returns the
	// func that closes the per-run log.
	OpenRunLog func(runDir string) func()
}

// NewOrchestrator wires the production components from settings.
func NewOrchestrator(loader *config.Loader, settings *config.Settings, out io.Writer, logger *log.Entry) (*Orchestrator, error) {
	p, err := prober.New(settings.Probe, logger)
	if err != nil {
		return nil, fmt.Errorf("prober: %w", err)
	}

	o := &Orchestrator{
		Loader:   loader,
		Settings: settings,
		Out:      out,
		Log:      logger,
		Now:      time.Now,
		Routes:   source.NewRoutes(logger),
		Prober:   p,
		Tools:    cliplugin.New(logger),
		Notifier: notify.New(settings.Notify.NatsURL, settings.Notify.Subject, logger),
		Rules:    yamlconfig.New(settings.Extraction.RulesDir),
	}

	remote, err := loader.LoadRemote()
	if err != nil {
		logger.WithError(err).Warn("Remote source configuration unreadable")
	}
	if remote.Enabled() {
		o.Remote = source.NewRemote(remote, logger)
	}
	return o, nil
}

// Run executes a full run. Terminal conditions (no targets, no alive
// hosts) end the run early with status empty and no error. The lock is
// always released.
func (o *Orchestrator) Run(ctx context.Context) (*domain.RunReport, error) {
	paths := o.Loader.Paths()
	started := o.now()
	runID := NewRunID(started)

	lock, err := AcquireLock(paths.LockFile(), runID, started)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			o.Log.WithError(err).Warn("Failed to release run lock")
		}
	}()

	runDir := paths.RunDir(runID)
	writer := jsonreport.New(runDir)
	report := &domain.RunReport{
		RunID:     runID,
		Status:    domain.RunFailed,
		StartedAt: started,
		RunDir:    runDir,
	}
	logger := o.Log.WithField("run_id", runID)

	if _, err := writer.WriteMeta(domain.RunMeta{
		RunID:     runID,
		TS:        started.UTC().Format(time.RFC3339),
		Initiator: "cli",
	}); err != nil {
		return report, fmt.Errorf("write run metadata: %w", err)
	}
	if o.OpenRunLog != nil {
		defer o.OpenRunLog(runDir)()
	}
	logger.WithField("run_dir", runDir).Info("Run started")

	runErr := o.execute(ctx, logger, writer, report)
	if runErr != nil {
		report.Status = domain.RunFailed
		report.Error = runErr.Error()
		logger.WithError(runErr).Error("Run failed")
	}
	o.finish(ctx, logger, writer, report)
	return report, runErr
}

func (o *Orchestrator) execute(ctx context.Context, logger *log.Entry, writer *jsonreport.Writer, report *domain.RunReport) error {
	// Stage 1: aggregation
	agg := aggregator.New(o.sources(), o.Prober, writer.Snapshots(), logger)
	summary, err := agg.Run(ctx)
	if err != nil {
		return fmt.Errorf("aggregation: %w", err)
	}
	report.Aggregation = summary
	if _, err := writer.WriteAggregation(summary); err != nil {
		return fmt.Errorf("write aggregation summary: %w", err)
	}

	o.printf("[01] aggregation: local=%d ftp=%d submitted=%d autodiscovery=%d raw_all=%d alive=%d\n",
		summary.Local, summary.Remote, summary.Submitted, summary.AutoDiscovery, summary.RawAll, len(summary.Alive))

	if reason := summary.Empty(); reason != domain.EmptyNone {
		report.Status = domain.RunEmpty
		report.EmptyReason = reason
		o.printf("[01] aggregation: %s, skipping tools\n", reason)
		logger.WithField("reason", reason).Info("Nothing to scan")
		return nil
	}

	// Stage 2: tool steps
	pipeline, err := o.Loader.LoadPipeline()
	if err != nil {
		return err
	}

	runner := &RunnerUC{
		Plugins: o.Loader,
		Tools:   o.Tools,
		LogDir:  filepath.Join(report.RunDir, jsonreport.ScanDir, "_logs"),
		Out:     o.Out,
		Log:     logger.WithField("stage", "pipeline"),
	}
	vars := map[string]string{
		"run_id":     report.RunID,
		"run_dir":    report.RunDir,
		"alive_file": filepath.Join(report.RunDir, jsonreport.AggregatedDir, aggregator.SnapshotAlive),
	}
	stepErrs, err := runner.Execute(ctx, pipeline, vars)
	report.StepErrors = stepErrs
	if err != nil {
		return err
	}

	// Stage 3: extraction and merge
	rules := o.Rules
	if rules == nil {
		rules = yamlconfig.New(o.Settings.Extraction.RulesDir)
	}
	specs, err := rules.LoadRules()
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	engine := extractor.NewEngine(o.Settings.Extraction.Workers, logger)
	result, err := engine.Run(ctx, report.RunDir, specs, domain.RunContext{
		"run_id":  report.RunID,
		"run_dir": report.RunDir,
	})
	if err != nil {
		return fmt.Errorf("extraction: %w", err)
	}

	path, err := o.merge(writer, result.Findings)
	if err != nil {
		return err
	}

	report.Status = domain.RunCompleted
	report.Findings = len(result.Findings)
	report.FindingsPath = path
	report.Skipped = result.Stats.Skipped()
	return nil
}

// merge persists the findings of every rule in extraction order.
func (o *Orchestrator) merge(sink domain.FindingWriter, findings []domain.Finding) (string, error) {
	path, err := sink.WriteFindings(findings)
	if err != nil {
		return "", fmt.Errorf("write findings: %w", err)
	}
	o.printf("[03] merge: parsed=%d\n", len(findings))
	return path, nil
}

func (o *Orchestrator) sources() []aggregator.Source {
	paths := o.Loader.Paths()

	var sources []aggregator.Source
	if o.Remote != nil {
		sources = append(sources, aggregator.Source{Kind: domain.SourceRemote, Reader: o.Remote})
	}
	sources = append(sources,
		aggregator.Source{Kind: domain.SourceLocal, Reader: source.NewFile(paths.TargetsFile())},
		aggregator.Source{Kind: domain.SourceSubmitted, Reader: source.NewFile(paths.SubmittedFile())},
	)
	if o.Settings.AutoDiscoveryEnabled() && o.Routes != nil {
		sources = append(sources, aggregator.Source{Kind: domain.SourceAutoDiscovery, Reader: o.Routes})
	}
	return sources
}

// finish records the outcome. Failures here are logged, not returned.
func (o *Orchestrator) finish(ctx context.Context, logger *log.Entry, writer *jsonreport.Writer, report *domain.RunReport) {
	report.FinishedAt = o.now()

	if err := metrics.Export(o.Loader.Paths().MetricsFile(), report); err != nil {
		logger.WithError(err).Warn("Failed to write metrics")
	}
	if o.Notifier != nil {
		if err := o.Notifier.Notify(ctx, report); err != nil {
			logger.WithError(err).Warn("Failed to publish run notification")
		}
	}
	if _, err := writer.WriteReport(report); err != nil {
		logger.WithError(err).Warn("Failed to write run report")
	}

	logger.WithFields(log.Fields{
		"status":      report.Status,
		"findings":    report.Findings,
		"tool_errors": len(report.StepErrors),
		"duration":    report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Run finished")
}

// IsLocked reports whether err came from a held run lock.
func IsLocked(err error) bool { return errors.Is(err, ErrLocked) }

func (o *Orchestrator) printf(format string, args ...any) {
	if o.Out != nil {
		fmt.Fprintf(o.Out, format, args...)
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
