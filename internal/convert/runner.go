// Package convert is the boundary to the external conversion scripts: it runs them and
// parses the side-car files and output records they leave behind.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/pachat/internal/models"
)

// Output is what a successful step printed.
type Output struct {
	Stdout string
	Stderr string
}

// Runner runs one conversion step against an input file.
type Runner interface {
	Run(ctx context.Context, script, input string) (*Output, error)
}

// ScriptRunner runs `<interpreter> <scriptDir>/<script> <input>`.
type ScriptRunner struct {
	interpreter string
	scriptDir   string
	timeout     time.Duration
	logger      *zap.Logger
}

// RunnerOption configures a ScriptRunner.
type RunnerOption func(*ScriptRunner)

// WithTimeout bounds each run. Zero leaves runs unbounded.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *ScriptRunner) { r.timeout = d }
}

// WithLogger sets a logger for step events.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *ScriptRunner) { r.logger = l }
}

// NewScriptRunner returns a runner for scripts in scriptDir.
func NewScriptRunner(interpreter, scriptDir string, opts ...RunnerOption) *ScriptRunner {
	r := &ScriptRunner{interpreter: interpreter, scriptDir: scriptDir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes script. A missing script yields ErrMissingFile; a non-zero exit yields *models.ToolError.
func (r *ScriptRunner) Run(ctx context.Context, script, input string) (*Output, error) {
	path := filepath.Join(r.scriptDir, script)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: script %s", models.ErrMissingFile, path)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.interpreter, path, input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("conversion step finished",
		zap.String("script", script), zap.String("input", input), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	if err != nil {
		toolErr := &models.ToolError{Script: script, ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		} else if toolErr.Stderr == "" {
			toolErr.Stderr = err.Error()
		}
		if ctxErr := ctx.Err(); ctxErr != nil && toolErr.Stderr == "" {
			toolErr.Stderr = ctxErr.Error()
		}
		return nil, toolErr
	}
	return &Output{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
