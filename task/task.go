// Package task implements the start/finish/cancel state machine shared by
// every asynchronous operation in this module: an atomic CAS state
// machine that settles exactly once, then fans the final Result out to
// its completion callbacks.
package task

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-reactor/internal/corelog"
	"github.com/joeycumines/go-reactor/result"
)

// State is one of the four states a Task may occupy.
type State uint32

const (
	Ready State = iota
	Running
	Cancelling
	Done
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Cancelling:
		return "cancelling"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Task is a single-finish state machine carrying a typed Result, a set of
// subtasks that are cancelled when their parent is (held by ordinary strong
// references, which the parent drops only when it cancels them), and a list
// of completion callbacks that fire exactly once, in registration order,
// after the Task transitions to Done.
//
// The zero Task is not usable; construct one with New.
type Task struct {
	state atomic.Uint32 // State

	mu       sync.Mutex
	res      result.Result
	children []*Task
	finished []func(result.Result)
}

// New returns a Task in the Ready state.
func New() *Task {
	t := &Task{}
	t.state.Store(uint32(Ready))
	return t
}

// State returns the Task's current state.
func (t *Task) State() State { return State(t.state.Load()) }

// IsRunning reports whether the Task is in the Running state.
func (t *Task) IsRunning() bool { return t.State() == Running }

// Result returns the Task's stamped Result. Before the Task is Done this is
// the zero (OK) Result.
func (t *Task) Result() result.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.res
}

// Start transitions Ready -> Running and returns true. If the Task has
// already been requested to cancel (Cancelling), Start instead finishes the
// Task as Cancelled and returns false. Calling Start more than once, or
// after the Task has left Ready, is a logic error reported via the logger
// and otherwise ignored.
func (t *Task) Start() bool {
	if t.state.CompareAndSwap(uint32(Ready), uint32(Running)) {
		return true
	}
	if t.state.CompareAndSwap(uint32(Cancelling), uint32(Done)) {
		t.settle(result.New(result.Cancelled, "task cancelled before start"))
		return false
	}
	corelog.Get().Info().Str("state", t.State().String()).Log("task: start called out of order")
	return false
}

// Finish transitions Running or Cancelling -> Done, stamping r as the
// Task's Result. Finishing a Task in any other state (Ready, or already
// Done, i.e. finishing twice) is ignored and logged as a bug.
func (t *Task) Finish(r result.Result) {
	if !t.state.CompareAndSwap(uint32(Running), uint32(Done)) {
		if !t.state.CompareAndSwap(uint32(Cancelling), uint32(Done)) {
			corelog.Get().Info().Str("state", t.State().String()).Log("task: double finish")
			return
		}
	}
	t.settle(r)
}

// FinishOK finishes the Task successfully.
func (t *Task) FinishOK() { t.Finish(result.Ok()) }

// FinishException finishes the Task as Internal, wrapping err as the cause.
func (t *Task) FinishException(err error) {
	t.Finish(result.New(result.Internal, err.Error()).WithCause(err))
}

// FinishCancel finishes the Task as Cancelled.
func (t *Task) FinishCancel() { t.Finish(result.New(result.Cancelled, "cancelled")) }

// Expire finishes the Task as DeadlineExceeded, for use by a Manager's
// single-shot deadline timer.
func (t *Task) Expire() { t.Finish(result.New(result.DeadlineExceeded, "deadline exceeded")) }

// Cancel requests cancellation. A Task not yet Running finishes immediately
// as Cancelled; a Running Task transitions to Cancelling, leaving the actual
// finish to whatever loop is driving it (which must check State between
// iterations and call FinishCancel). Cancelling propagates to every
// unfinished subtask added via AddSubtask. Cancelling an already-Done Task
// is a no-op; cancelling an already-Cancelling Task only cancels subtasks
// added since the previous Cancel.
func (t *Task) Cancel() {
	if t.state.CompareAndSwap(uint32(Ready), uint32(Done)) {
		t.settle(result.New(result.Cancelled, "cancelled before start"))
		t.cancelChildren()
		return
	}
	if t.state.CompareAndSwap(uint32(Running), uint32(Cancelling)) {
		t.cancelChildren()
		return
	}
	if t.State() == Running || t.State() == Cancelling {
		t.cancelChildren()
	}
}

func (t *Task) cancelChildren() {
	t.mu.Lock()
	children := t.children
	t.children = nil
	t.mu.Unlock()
	for _, c := range children {
		c.Cancel()
	}
}

// AddSubtask links child so that cancelling t also cancels child. Cancelling
// or finishing a child never cancels or finishes the parent. Adding a
// subtask to an already-Done task cancels the child immediately, since no
// future cancellation of the parent will ever occur.
func (t *Task) AddSubtask(child *Task) {
	if child == nil {
		return
	}
	if t.State() == Done {
		child.Cancel()
		return
	}
	t.mu.Lock()
	if t.State() == Done {
		t.mu.Unlock()
		child.Cancel()
		return
	}
	t.children = append(t.children, child)
	t.mu.Unlock()
}

// OnFinished registers a callback to run exactly once, after the Task
// transitions to Done, with the final Result. If the Task is already Done,
// the callback runs inline before OnFinished returns. Callbacks run in
// registration order.
func (t *Task) OnFinished(cb func(result.Result)) {
	if cb == nil {
		return
	}
	t.mu.Lock()
	if t.State() == Done {
		r := t.res
		t.mu.Unlock()
		cb(r)
		return
	}
	t.finished = append(t.finished, cb)
	t.mu.Unlock()
}

// settle stamps the Result and runs every OnFinished callback, in
// registration order, on the calling goroutine. It is only ever reached via
// a successful CAS into Done, so it runs at most once per Task.
func (t *Task) settle(r result.Result) {
	t.mu.Lock()
	t.res = r
	cbs := t.finished
	t.finished = nil
	t.mu.Unlock()
	for _, cb := range cbs {
		cb(r)
	}
}
