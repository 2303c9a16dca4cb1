package trailrunner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/iter"
)

// ExecutorKind selects an execution strategy. The set is closed: callers
// pick a variant instead of supplying their own scheduler.
type ExecutorKind int

const (
	// ExecSerial runs tasks one at a time on the calling goroutine, in
	// input order.
	ExecSerial ExecutorKind = iota
	// ExecPool dispatches tasks to a bounded goroutine pool. Completion
	// order is unconstrained; result order is not.
	ExecPool
)

// ErrTaskTimeout marks a result slot whose task exceeded the executor's
// per-item deadline. The overrunning goroutine is abandoned, not
// interrupted; sibling items are unaffected.
var ErrTaskTimeout = errors.New("trailrunner: task timed out")

// Task is the callable applied to each path. The context carries the
// per-item deadline when the executor configures one; tasks that want to
// stop early should honor it, nothing forces them to.
type Task[T any] func(ctx context.Context, path string) (T, error)

// Result pairs one input path with the task's outcome for it. In every
// slice returned by RunWith, entry i corresponds to input path i.
type Result[T any] struct {
	Path  string
	Value T
	Err   error
}

// Executor describes how a run applies a task across paths.
type Executor struct {
	Kind        ExecutorKind
	Workers     int           // pool size; <= 0 means runtime.NumCPU()
	ItemTimeout time.Duration // per-task deadline; 0 disables
}

// The process-wide executor. Replaced wholesale via SetExecutor so runs that
// already captured a value are untouched by later mutation.
var activeExecutor atomic.Pointer[Executor]

// ActiveExecutor returns the process-wide executor, lazily initializing it
// to the serial default on first use.
func ActiveExecutor() Executor {
	if e := activeExecutor.Load(); e != nil {
		return *e
	}
	activeExecutor.CompareAndSwap(nil, &Executor{Kind: ExecSerial})
	return *activeExecutor.Load()
}

// SetExecutor replaces the process-wide executor for subsequent runs that do
// not name one explicitly. Runs already in flight keep the executor they
// captured at start.
func SetExecutor(e Executor) {
	activeExecutor.Store(&e)
}

// ResetExecutor restores the serial default.
func ResetExecutor() {
	activeExecutor.Store(&Executor{Kind: ExecSerial})
}

// RunWith applies fn to every path under the given executor. It always
// returns exactly len(paths) results, positionally aligned with the input.
// A task's failure, panic, or timeout lands in its own slot and never
// cancels sibling tasks.
func RunWith[T any](ctx context.Context, exe Executor, paths []string, fn Task[T]) []Result[T] {
	if ctx == nil {
		ctx = context.Background()
	}

	if exe.Kind == ExecPool {
		workers := exe.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		mapper := iter.Mapper[string, Result[T]]{MaxGoroutines: workers}
		return mapper.Map(paths, func(p *string) Result[T] {
			return runOne(ctx, exe, *p, fn)
		})
	}

	results := make([]Result[T], len(paths))
	for i, p := range paths {
		results[i] = runOne(ctx, exe, p, fn)
	}
	return results
}

func runOne[T any](ctx context.Context, exe Executor, path string, fn Task[T]) Result[T] {
	if exe.ItemTimeout <= 0 {
		value, err := invoke(ctx, path, fn)
		return Result[T]{Path: path, Value: value, Err: err}
	}

	itemCtx, cancel := context.WithTimeout(ctx, exe.ItemTimeout)
	defer cancel()

	done := make(chan Result[T], 1)
	go func() {
		value, err := invoke(itemCtx, path, fn)
		done <- Result[T]{Path: path, Value: value, Err: err}
	}()

	select {
	case res := <-done:
		return res
	case <-itemCtx.Done():
		if err := ctx.Err(); err != nil {
			return Result[T]{Path: path, Err: err}
		}
		return Result[T]{Path: path, Err: fmt.Errorf("%w after %s: %s", ErrTaskTimeout, exe.ItemTimeout, path)}
	}
}

// invoke shields a run from a panicking task: the panic becomes that item's
// error so the remaining items still execute.
func invoke[T any](ctx context.Context, path string, fn Task[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked on %s: %v", path, r)
		}
	}()
	return fn(ctx, path)
}
