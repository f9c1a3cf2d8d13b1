package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"bytemomo/autopen/internal/config"
	"bytemomo/autopen/internal/domain"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

// ErrStepAborted is returned when a step fails and the pipeline does not
// continue on error.
var ErrStepAborted = errors.New("pipeline aborted")

// ToolRunner executes one plugin invocation.
type ToolRunner interface {
	Run(ctx context.Context, p *config.Plugin, vars map[string]string, out io.Writer) error
}

// PluginSource resolves a step name to its plugin definition.
type PluginSource interface {
	LoadPlugin(name string) (*config.Plugin, error)
}

// RunnerUC executes the tool steps of a pipeline.
type RunnerUC struct {
	Plugins PluginSource
	Tools   ToolRunner
	LogDir  string    // per-step output, <step>.log
	Out     io.Writer // progress lines
	Log     *log.Entry

	mu sync.Mutex
}

// Execute runs every step. With ContinueOnError the steps share a pool of
// Concurrency workers and every failure is collected; otherwise they run in
// order and the first failure stops the pipeline with ErrStepAborted.
func (uc *RunnerUC) Execute(ctx context.Context, p *config.Pipeline, vars map[string]string) ([]domain.StepError, error) {
	fmt.Fprintf(uc.out(), "[02] pipeline: steps=%v, concurrency=%d, continue_on_error=%t\n",
		p.Steps, p.Concurrency, p.ContinueOnError)

	if !p.ContinueOnError {
		var errs []domain.StepError
		for i, step := range p.Steps {
			if err := ctx.Err(); err != nil {
				return errs, err
			}
			if err := uc.runStep(ctx, i+1, step, vars); err != nil {
				errs = append(errs, domain.StepError{Step: step, Error: err.Error()})
				return errs, fmt.Errorf("%w: step %s: %v", ErrStepAborted, step, err)
			}
		}
		return errs, nil
	}

	failures := make([]error, len(p.Steps))
	pool, err := ants.NewPool(max(1, p.Concurrency))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, step := range p.Steps {
		i, step := i, step
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			failures[i] = uc.runStep(ctx, i+1, step, vars)
		}); err != nil {
			wg.Done()
			failures[i] = err
		}
	}
	wg.Wait()

	var errs []domain.StepError
	for i, err := range failures {
		if err != nil {
			errs = append(errs, domain.StepError{Step: p.Steps[i], Error: err.Error()})
		}
	}
	return errs, ctx.Err()
}

func (uc *RunnerUC) runStep(ctx context.Context, idx int, step string, vars map[string]string) error {
	logger := uc.Log.WithFields(log.Fields{"step": step, "index": idx})

	err := uc.invoke(ctx, step, vars)
	if err != nil {
		logger.WithError(err).Warn("Step failed")
		uc.progress("[02.%02d] %s: ERROR (%v)\n", idx, step, err)
		return err
	}
	logger.Info("Step completed")
	uc.progress("[02.%02d] %s: ok\n", idx, step)
	return nil
}

func (uc *RunnerUC) invoke(ctx context.Context, step string, vars map[string]string) error {
	plugin, err := uc.Plugins.LoadPlugin(step)
	if err != nil {
		return err
	}

	stepVars := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		stepVars[k] = v
	}
	stepVars["step"] = step

	var out io.Writer
	if uc.LogDir != "" {
		if err := os.MkdirAll(uc.LogDir, 0o755); err == nil {
			if f, err := os.Create(filepath.Join(uc.LogDir, step+".log")); err == nil {
				defer f.Close()
				out = f
			}
		}
	}

	return uc.Tools.Run(ctx, plugin, stepVars, out)
}

func (uc *RunnerUC) progress(format string, args ...any) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	fmt.Fprintf(uc.out(), format, args...)
}

func (uc *RunnerUC) out() io.Writer {
	if uc.Out == nil {
		return io.Discard
	}
	return uc.Out
}
