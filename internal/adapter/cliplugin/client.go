package cliplugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"bytemomo/autopen/internal/config"

	log "github.com/sirupsen/logrus"
)

// waitDelay bounds how long output pipes are drained after the shell is
// killed; tools forked by the shell may still hold them open.
const waitDelay = 2 * time.Second

// RunError reports a tool command that did not exit cleanly.
type RunError struct {
	Plugin string
	Code   int // -1 when the command never produced an exit status
	Err    error
}

func (e *RunError) Error() string {
	if e.Code >= 0 {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *RunError) Unwrap() error { return e.Err }

// Client runs plugin command templates through a POSIX shell.
type Client struct {
	Shell string
	Log   *log.Entry
}

// New creates a client using sh.
func New(logger *log.Entry) *Client {
	return &Client{Shell: "sh", Log: logger.WithField("component", "cliplugin")}
}

// Run renders the plugin's cmd with vars and executes it. Combined output
// goes to out; a nil out keeps it in memory for the error log only.
func (c *Client) Run(ctx context.Context, p *config.Plugin, vars map[string]string, out io.Writer) error {
	if err := p.Validate(); err != nil {
		return &RunError{Plugin: p.Name, Code: -1, Err: err}
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	command := p.Render(vars)
	logger := c.Log.WithFields(log.Fields{"plugin": p.Name, "cmd": command})
	logger.Debug("Running plugin")

	var tail bytes.Buffer
	w := io.Writer(&tail)
	if out != nil {
		w = io.MultiWriter(out, &tail)
	}

	cmd := exec.CommandContext(ctx, c.Shell, "-c", command)
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return nil
	}

	runErr := &RunError{Plugin: p.Name, Code: -1, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		runErr.Code = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		runErr.Code = -1
		runErr.Err = fmt.Errorf("plugin %s: %w", p.Name, ctx.Err())
	}

	logger.WithError(runErr).WithField("output", lastBytes(tail.Bytes(), 2048)).Warn("Plugin failed")
	return runErr
}

func lastBytes(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
