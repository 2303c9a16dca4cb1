// Package trail provides gitignore-aware file tree walking and pluggable
// task execution over the discovered files.
//
// Walk finds the project root above a path, loads every applicable ignore
// file, and lazily yields the significant files beneath it. Run applies a
// callable to a batch of paths under the process-wide executor, either
// sequentially or on a bounded goroutine pool, always returning one result
// per input in input order. WalkAndRun composes the two.
package trail

import (
	"context"
	"iter"
	"slices"

	internal "github.com/TFMV/trailrunner/internal/trail"
)

// Re-export the core types from the internal package.
type (
	// Runner ties root discovery, ignore handling, and traversal together.
	Runner = internal.Runner

	// Option configures a Runner.
	Option = internal.Option

	// Executor describes how a run applies a task across paths.
	Executor = internal.Executor

	// ExecutorKind selects an execution strategy.
	ExecutorKind = internal.ExecutorKind

	// Task is the callable applied to each path.
	Task[T any] = internal.Task[T]

	// Result pairs one input path with the task's outcome for it.
	Result[T any] = internal.Result[T]

	// Config holds the optional file- and environment-backed settings.
	Config = internal.Config

	// IgnoreSet is the ordered gitignore pattern collection for one walk.
	IgnoreSet = internal.IgnoreSet

	// Watch types.
	WatchEvent   = internal.WatchEvent
	WatchMessage = internal.WatchMessage
	WatchResult  = internal.WatchResult
	WatchHandler = internal.WatchHandler
)

// Re-export the constants.
const (
	// Execution strategies
	ExecSerial = internal.ExecSerial
	ExecPool   = internal.ExecPool

	// Watch event types
	EventCreate = internal.EventCreate
	EventModify = internal.EventModify
	EventDelete = internal.EventDelete
	EventRename = internal.EventRename
	EventChmod  = internal.EventChmod
)

// ErrTaskTimeout marks a result slot whose task exceeded the per-item
// deadline.
var ErrTaskTimeout = internal.ErrTaskTimeout

// Runner options.
var (
	WithLogger   = internal.WithLogger
	WithInclude  = internal.WithInclude
	WithExecutor = internal.WithExecutor
)

// NewRunner creates a Runner with the given options applied.
func NewRunner(opts ...Option) *Runner {
	return internal.NewRunner(opts...)
}

// DefaultRunner serves the package-level functions below.
var DefaultRunner = internal.NewRunner()

// Walk lazily yields every significant file under path using the default
// runner. Each call re-walks from scratch.
func Walk(path string) iter.Seq[string] {
	return DefaultRunner.Walk(path)
}

// WalkPaths collects Walk's output into a slice.
func WalkPaths(path string) []string {
	return slices.Collect(DefaultRunner.Walk(path))
}

// Run applies fn to every path under the process-wide executor. The result
// slice always has one entry per input path, positionally aligned.
func Run[T any](ctx context.Context, paths []string, fn Task[T]) []Result[T] {
	return internal.RunWith(ctx, internal.ActiveExecutor(), paths, fn)
}

// RunWith is Run with an explicit executor instead of the process-wide one.
func RunWith[T any](ctx context.Context, exe Executor, paths []string, fn Task[T]) []Result[T] {
	return internal.RunWith(ctx, exe, paths, fn)
}

// WalkAndRun walks path with the default runner and runs fn over every
// gathered file. The walk is fully materialized before dispatch.
func WalkAndRun[T any](ctx context.Context, path string, fn Task[T]) []Result[T] {
	return internal.WalkAndRun(ctx, DefaultRunner, path, fn)
}

// ProjectRoot finds the closest ancestor of path containing a root marker,
// degrading to path's own directory when none is found.
func ProjectRoot(path string) string {
	return internal.ProjectRoot(path)
}

// SetExecutor replaces the process-wide executor for subsequent runs.
// In-flight runs keep the executor they captured at start.
func SetExecutor(e Executor) {
	internal.SetExecutor(e)
}

// ActiveExecutor returns the process-wide executor.
func ActiveExecutor() Executor {
	return internal.ActiveExecutor()
}

// ResetExecutor restores the serial default.
func ResetExecutor() {
	internal.ResetExecutor()
}

// Gitignore parses the ignore file in dir into a standalone IgnoreSet.
func Gitignore(dir string) *IgnoreSet {
	return internal.Gitignore(dir)
}

// LoadConfig reads .trailrunner.yaml from dir plus TRAILRUNNER_* environment
// overrides.
func LoadConfig(dir string) (Config, error) {
	return internal.LoadConfig(dir)
}

// Watch monitors the tree under root with the default runner, delivering
// ignore-filtered file events to handler until ctx is done.
func Watch(ctx context.Context, root string, handler WatchHandler) error {
	return DefaultRunner.Watch(ctx, root, handler)
}
