// Package trailrunner walks file trees with gitignore awareness and runs
// tasks over the discovered files, with pluggable sequential or pooled
// execution.
package trailrunner

import (
	"context"
	"regexp"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Runner ties root discovery, ignore handling, and traversal together.
// Construct with NewRunner; a Runner is safe for concurrent walks.
type Runner struct {
	logger  *zap.Logger
	include *regexp.Regexp
	exec    *Executor // nil means the process-wide executor
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger routes traversal warnings through the given logger instead of
// the default one.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithInclude overrides the package-level IncludePattern for this runner
// only.
func WithInclude(include *regexp.Regexp) Option {
	return func(r *Runner) {
		r.include = include
	}
}

// WithExecutor pins the runner to a fixed executor, bypassing the
// process-wide registry.
func WithExecutor(e Executor) Option {
	return func(r *Runner) {
		r.exec = &e
	}
}

// NewRunner creates a Runner with the given options applied.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = newLogger(zapcore.WarnLevel)
	}
	return r
}

// Executor returns the executor this runner dispatches with: its pinned one
// when set, the process-wide executor otherwise. The value is captured once
// per run, so replacing the registry mid-run never affects work in flight.
func (r *Runner) Executor() Executor {
	if r.exec != nil {
		return *r.exec
	}
	return ActiveExecutor()
}

func (r *Runner) includePattern() *regexp.Regexp {
	if r.include != nil {
		return r.include
	}
	return IncludePattern
}

// WalkAndRun materializes the walk rooted at path and dispatches fn over the
// gathered files with the runner's executor. Gathering up front means the
// total amount of work is known before the first task starts.
func WalkAndRun[T any](ctx context.Context, r *Runner, path string, fn Task[T]) []Result[T] {
	paths := slices.Collect(r.Walk(path))
	return RunWith(ctx, r.Executor(), paths, fn)
}

// newLogger creates a zap logger with the specified level, production
// config.
func newLogger(level zapcore.Level) *zap.Logger {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	logger, _ := config.Build()
	return logger
}
