// Package dispatch runs callbacks handed to it by a reactor.Manager or
// directly by callers: inline on the caller's goroutine, queued for a
// single background goroutine, or spread across an adaptively sized
// worker pool with {min, max, desired, current, busy} counters,
// exponential idle backoff, and cork/uncork.
package dispatch

import (
	"runtime"
	"sync"
	"time"

	"github.com/joeycumines/go-reactor/internal/corelog"
	"github.com/joeycumines/go-reactor/result"
	"github.com/joeycumines/go-reactor/task"
)

// Callback is a unit of work submitted to a Dispatcher. It returns a Result
// used to finish the owning Task, if any.
type Callback func() result.Result

// Stats is a point-in-time snapshot of a Dispatcher's counters.
type Stats struct {
	MinWorkers        int
	MaxWorkers        int
	DesiredNumWorkers int
	CurrentNumWorkers int
	PendingCount      int
	ActiveCount       int
	CompletedCount    int64
	CaughtExceptions  int64
	Corked            bool
}

// Type selects a Dispatcher implementation at construction.
type Type int

const (
	// TypeThreaded is the default: a fresh adaptively-sized pool.
	TypeThreaded Type = iota
	TypeInline
	TypeAsync
	// TypeSystem shares the process-wide System dispatcher.
	TypeSystem
)

// NewOfType constructs (or, for TypeSystem, shares) a Dispatcher of the
// given kind. minWorkers/maxWorkers apply only to TypeThreaded.
func NewOfType(t Type, minWorkers, maxWorkers int) Dispatcher {
	switch t {
	case TypeInline:
		return NewInline()
	case TypeAsync:
		return NewAsync()
	case TypeSystem:
		return System()
	default:
		return NewThreaded(minWorkers, maxWorkers)
	}
}

// Dispatcher is implemented by Inline, Async, and Threaded.
type Dispatcher interface {
	// Dispatch runs cb, possibly asynchronously. If t is non-nil, cb's
	// Result finishes t; otherwise a failing Result is logged.
	Dispatch(t *task.Task, cb Callback)
	Stats() Stats
	// Shutdown stops accepting new work and waits for in-flight work to
	// drain.
	Shutdown()
}

func runCallback(t *task.Task, cb Callback) (r result.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r = result.FromPanic(rec)
			corelog.Get().Err().Str("panic", r.Message()).Log("dispatch: callback panicked")
		}
		if t != nil {
			t.Finish(r)
		} else if r.Failed() {
			corelog.Get().Info().Str("code", r.Code().String()).Str("message", r.Message()).Log("dispatch: fire-and-forget callback failed")
		}
	}()
	return cb()
}

// Inline runs every callback synchronously on the calling goroutine.
type Inline struct {
	mu        sync.Mutex
	completed int64
	caught    int64
}

func NewInline() *Inline { return &Inline{} }

func (d *Inline) Dispatch(t *task.Task, cb Callback) {
	r := runCallback(t, cb)
	d.mu.Lock()
	d.completed++
	if r.Code() == result.Internal {
		d.caught++
	}
	d.mu.Unlock()
}

func (d *Inline) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{MinWorkers: 1, MaxWorkers: 1, DesiredNumWorkers: 1, CurrentNumWorkers: 1, CompletedCount: d.completed, CaughtExceptions: d.caught}
}

func (d *Inline) Shutdown() {}

type queuedWork struct {
	t  *task.Task
	cb Callback
}

// Async enqueues callbacks for a single background goroutine ("donate"),
// preserving submission order.
type Async struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []queuedWork
	closed  bool
	done    chan struct{}
	started bool

	completed int64
	caught    int64
	active    int
}

func NewAsync() *Async {
	a := &Async{done: make(chan struct{})}
	a.cond = sync.NewCond(&a.mu)
	return a
}

func (d *Async) ensureStarted() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()
	go d.loop()
}

func (d *Async) loop() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			close(d.done)
			return
		}
		w := d.queue[0]
		d.queue = d.queue[1:]
		d.active++
		d.mu.Unlock()

		r := runCallback(w.t, w.cb)

		d.mu.Lock()
		d.active--
		d.completed++
		if r.Code() == result.Internal {
			d.caught++
		}
		d.mu.Unlock()
	}
}

func (d *Async) Dispatch(t *task.Task, cb Callback) {
	d.ensureStarted()
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		if t != nil {
			t.Finish(result.New(result.FailedPrecondition, "dispatcher shut down"))
		}
		return
	}
	d.queue = append(d.queue, queuedWork{t: t, cb: cb})
	d.mu.Unlock()
	d.cond.Signal()
}

func (d *Async) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur := 0
	if d.started {
		cur = 1
	}
	return Stats{
		MinWorkers: 1, MaxWorkers: 1, DesiredNumWorkers: 1, CurrentNumWorkers: cur,
		PendingCount: len(d.queue), ActiveCount: d.active,
		CompletedCount: d.completed, CaughtExceptions: d.caught,
	}
}

func (d *Async) Shutdown() {
	d.mu.Lock()
	started := d.started
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
	if started {
		<-d.done
	}
}

const (
	idleWaitStart = 125 * time.Millisecond
	idleWaitCap   = 8 * time.Second
)

// Threaded is an adaptively sized worker pool: it maintains
// {min, max, desired, current, busy} counters and a FIFO queue.
// Submission grows desired (and spawns a worker) when the queue backs up;
// an idle worker waits up to an exponentially increasing timeout (starting
// at 125ms, capped at 8s) before shrinking desired, never below min.
// Cork() stops workers from taking queued work (Dispatch still enqueues)
// and returns once in-flight callbacks finish; Uncork() resumes it.
type Threaded struct {
	mu   sync.Mutex
	cond *sync.Cond // guards both "corked released" and "busy == 0" waits

	min, max, desired, current, busy int
	queue                            []queuedWork
	wake                             chan struct{} // closed+replaced to broadcast new work/shutdown
	corked                           bool
	shutdown                         bool

	completed int64
	caught    int64
}

// NewThreaded constructs a Threaded dispatcher. max <= 0 defaults to
// runtime.GOMAXPROCS(0); min is clamped into [0, max].
func NewThreaded(min, max int) *Threaded {
	if max <= 0 {
		max = runtime.GOMAXPROCS(0)
	}
	if min < 0 {
		min = 0
	}
	if min > max {
		min = max
	}
	d := &Threaded{min: min, max: max, wake: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	for i := 0; i < min; i++ {
		d.current++
		d.desired++
		go d.worker()
	}
	return d
}

// broadcastWake wakes every worker blocked on d.wake. Must be called with
// d.mu held.
func (d *Threaded) broadcastWake() {
	close(d.wake)
	d.wake = make(chan struct{})
}

func (d *Threaded) Dispatch(t *task.Task, cb Callback) {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		if t != nil {
			t.Finish(result.New(result.FailedPrecondition, "dispatcher shut down"))
		}
		return
	}
	d.queue = append(d.queue, queuedWork{t: t, cb: cb})
	if d.corked {
		// Queued work accumulates while corked; Uncork drains it.
		d.mu.Unlock()
		return
	}
	if d.desired < d.max && len(d.queue) >= d.desired {
		d.desired++
		d.current++
		go d.worker()
	}
	d.broadcastWake()
	d.mu.Unlock()
}

func (d *Threaded) worker() {
	idle := idleWaitStart

	for {
		d.mu.Lock()
		for (len(d.queue) == 0 || d.corked) && !d.shutdown {
			wake := d.wake
			d.mu.Unlock()

			select {
			case <-wake:
				idle = idleWaitStart
			case <-time.After(idle):
				idle = min(idle*2, idleWaitCap)
				d.mu.Lock()
				if (len(d.queue) == 0 || d.corked) && !d.shutdown && d.desired > d.min {
					d.desired--
					d.current--
					d.mu.Unlock()
					return
				}
				d.mu.Unlock()
			}
			d.mu.Lock()
		}

		if d.shutdown && len(d.queue) == 0 {
			d.current--
			d.cond.Broadcast()
			d.mu.Unlock()
			return
		}

		w := d.queue[0]
		d.queue = d.queue[1:]
		d.busy++
		d.mu.Unlock()

		r := runCallback(w.t, w.cb)

		d.mu.Lock()
		d.busy--
		d.completed++
		if r.Code() == result.Internal {
			d.caught++
		}
		if d.busy == 0 {
			d.cond.Broadcast()
		}
		d.mu.Unlock()
	}
}

// Cork stops workers from taking queued work (Dispatch still enqueues) and
// waits until every in-flight callback has finished. Corking an
// already-corked pool returns FAILED_PRECONDITION.
func (d *Threaded) Cork() result.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.corked {
		return result.New(result.FailedPrecondition, "dispatcher is already corked")
	}
	d.corked = true
	for d.busy > 0 {
		d.cond.Wait()
	}
	return result.Ok()
}

// Uncork resumes work, pre-spawning up to one worker per queued callback
// (capped at max) to drain the backlog that built up while corked.
func (d *Threaded) Uncork() result.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.corked {
		return result.New(result.FailedPrecondition, "dispatcher is not corked")
	}
	d.corked = false
	if n := min(len(d.queue), d.max); n > d.desired {
		for d.desired < n {
			d.desired++
			d.current++
			go d.worker()
		}
	}
	d.broadcastWake()
	d.cond.Broadcast()
	return result.Ok()
}

func (d *Threaded) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		MinWorkers: d.min, MaxWorkers: d.max, DesiredNumWorkers: d.desired, CurrentNumWorkers: d.current,
		PendingCount: len(d.queue), ActiveCount: d.busy,
		CompletedCount: d.completed, CaughtExceptions: d.caught, Corked: d.corked,
	}
}

var (
	systemMu sync.Mutex
	system   Dispatcher
)

// System returns the process-wide default Dispatcher, lazily constructing a
// machine-sized Threaded pool on first use. Safe for concurrent first-use.
func System() Dispatcher {
	systemMu.Lock()
	defer systemMu.Unlock()
	if system == nil {
		system = NewThreaded(1, 0)
	}
	return system
}

// SetSystem replaces the process-wide default Dispatcher. Passing nil
// restores the lazily-constructed default on next use. The previous
// dispatcher is not shut down; that remains the caller's call.
func SetSystem(d Dispatcher) {
	systemMu.Lock()
	defer systemMu.Unlock()
	system = d
}

// Shutdown zeroes min/max/desired, wakes every worker, and waits for all of
// them to exit.
func (d *Threaded) Shutdown() {
	d.mu.Lock()
	d.shutdown = true
	d.min, d.max, d.desired = 0, 0, 0
	d.broadcastWake()
	d.cond.Broadcast()
	for d.current > 0 {
		d.cond.Wait()
	}
	d.mu.Unlock()
}
