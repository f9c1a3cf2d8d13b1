// Package extractor turns heterogeneous tool output into normalized
// findings using declarative per-tool rules.
package extractor

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"bytemomo/autopen/internal/domain"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

const defaultWorkers = 4

// Engine applies rules to the tool output of a run directory.
type Engine struct {
	Workers int
	Log     *log.Entry
	Now     func() time.Time
}

// NewEngine creates an engine with a bounded file worker pool.
func NewEngine(workers int, logger *log.Entry) *Engine {
	return &Engine{
		Workers: workers,
		Log:     logger.WithField("stage", "extraction"),
		Now:     time.Now,
	}
}

// Result is the ordered output of an extraction pass.
type Result struct {
	Findings []domain.Finding
	Stats    Stats
}

type job struct {
	rule *Rule
	path string
}

// Run compiles specs and extracts findings from every matching file under
// runDir. Rules run in ID order, files in path order; the output order does
// not depend on the worker count. The only error is context cancellation
// or pool setup failure.
func (e *Engine) Run(ctx context.Context, runDir string, specs []domain.RuleSpec, rc domain.RunContext) (*Result, error) {
	res := &Result{}

	sorted := append([]domain.RuleSpec(nil), specs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var jobs []job
	for _, spec := range sorted {
		res.Stats.Rules++
		rule, err := Compile(spec)
		if err != nil {
			res.Stats.RulesSkipped++
			e.Log.WithError(err).WithField("rule", spec.ID).Warn("Skipping malformed rule")
			continue
		}

		matches, err := filepath.Glob(filepath.Join(runDir, rule.Glob))
		if err != nil {
			res.Stats.RulesSkipped++
			e.Log.WithError(err).WithField("rule", rule.ID).Warn("Skipping rule with bad glob")
			continue
		}
		sort.Strings(matches)

		e.Log.WithFields(log.Fields{"rule": rule.ID, "kind": rule.Kind, "files": len(matches)}).Debug("Rule matched files")
		for _, m := range matches {
			jobs = append(jobs, job{rule: rule, path: m})
		}
	}

	results, err := e.extractAll(ctx, jobs, rc)
	if err != nil {
		return nil, err
	}

	for i, r := range results {
		if r.Stats.FilesSkipped > 0 {
			e.Log.WithFields(log.Fields{"rule": jobs[i].rule.ID, "path": jobs[i].path}).Warn("Unparsable output file skipped")
		}
		res.Findings = append(res.Findings, r.Findings...)
		res.Stats.Add(r.Stats)
	}

	e.Log.WithFields(log.Fields{
		"findings":      len(res.Findings),
		"rules":         res.Stats.Rules,
		"rules_skipped": res.Stats.RulesSkipped,
		"files":         res.Stats.Files,
		"files_skipped": res.Stats.FilesSkipped,
		"lines_skipped": res.Stats.LinesSkipped,
		"dropped":       res.Stats.Dropped,
		"field_errors":  res.Stats.FieldErrors,
	}).Info("Extraction complete")

	return res, nil
}

// extractAll fans jobs out over the pool and returns results in job order.
func (e *Engine) extractAll(ctx context.Context, jobs []job, rc domain.RunContext) ([]FileResult, error) {
	results := make([]FileResult, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}

	workers := e.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range jobs {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}

		i := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[i] = jobs[i].rule.ExtractFile(jobs[i].path, rc, now())
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return nil, submitErr
		}
	}
	wg.Wait()

	return results, ctx.Err()
}
