// Package chain implements a pooled-buffer byte queue used as the engine
// behind Pipe and behind buffered Readers/Writers: fill/drain the queue,
// install terminal read/write errors, flush it, then call Process to
// drive any Read/Write operations that are now unblocked.
//
// Queued bytes live in a single growable []byte; slice growth amortizes
// what a deque of fixed-size blocks would do by hand. The buffer.Pool is
// consulted for its block size, which bounds the queue's capacity when
// maxBuffers > 0.
package chain

import (
	"sync"

	"github.com/joeycumines/go-reactor/buffer"
	"github.com/joeycumines/go-reactor/result"
	"github.com/joeycumines/go-reactor/task"
)

// Func is called in the "rdfn" or "wrfn" role to ask the Chain's owner to
// unblock forward progress by calling some sequence of Fill, Drain,
// FailReads, FailWrites, and/or Flush, followed by Process. Returning true
// requests an immediate re-attempt; false means the owner will arrange for
// Process to run later.
type Func func(c *Chain) bool

type readOp struct {
	t   *task.Task
	out []byte
	n   *int
	min int
	got int
}

type writeOp struct {
	t   *task.Task
	ptr []byte
	n   *int
	got int
}

// Chain is a byte queue backed by a single growable buffer, bounded to
// maxBuffers*pool.BufferSize() bytes when both are set.
type Chain struct {
	mu   sync.Mutex
	rdfn Func
	wrfn Func
	pool *buffer.Pool
	max  int

	queue []byte

	rdq []*readOp
	wrq []*writeOp

	rderr result.Result
	wrerr result.Result

	rdbusy bool
	wrbusy bool
}

// New constructs a Chain. rdfn/wrfn may be nil (as for Pipe, where there is
// no owner beyond the two ends themselves). pool may be nil if maxBuffers is
// 0 (unbounded).
func New(rdfn, wrfn Func, pool *buffer.Pool, maxBuffers int) *Chain {
	return &Chain{rdfn: rdfn, wrfn: wrfn, pool: pool, max: maxBuffers}
}

// Pool returns the buffer.Pool this Chain was constructed with, or nil.
func (c *Chain) Pool() *buffer.Pool { return c.pool }

// Queued reports how many bytes are currently buffered.
func (c *Chain) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Chain) capacity() int {
	if c.max <= 0 || c.pool == nil {
		return -1
	}
	return c.max * c.pool.BufferSize()
}

func (c *Chain) fillLocked(p []byte) int {
	room := len(p)
	if capBytes := c.capacity(); capBytes >= 0 {
		avail := capBytes - len(c.queue)
		if avail < 0 {
			avail = 0
		}
		if room > avail {
			room = avail
		}
	}
	c.queue = append(c.queue, p[:room]...)
	return room
}

func (c *Chain) drainLocked(p []byte) int {
	n := copy(p, c.queue)
	c.queue = c.queue[n:]
	return n
}

// Fill appends up to len(p) bytes to the queue, honoring the capacity bound,
// and returns the number of bytes actually queued.
func (c *Chain) Fill(p []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fillLocked(p)
}

// Drain removes up to len(p) bytes from the front of the queue into p.
func (c *Chain) Drain(p []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drainLocked(p)
}

// FailReads arranges for future reads to fail with r once the queue drains.
func (c *Chain) FailReads(r result.Result) {
	c.mu.Lock()
	c.rderr = r
	c.mu.Unlock()
}

// FailWrites arranges for future writes to fail with r.
func (c *Chain) FailWrites(r result.Result) {
	c.mu.Lock()
	c.wrerr = r
	c.mu.Unlock()
}

// Flush discards all queued bytes. Only meaningful after FailReads,
// since a live reader would otherwise observe the queue skipping ahead.
func (c *Chain) Flush() {
	c.mu.Lock()
	c.queue = nil
	c.mu.Unlock()
}

// Undrain pushes p back onto the front of the queue, as if it had never
// been Drain'd (used by peek/ungetch-style buffered reads). The queue is
// one growable slice, so pushing back more bytes than were drained is
// simply a larger prepend. Capacity accounting is intentionally not
// enforced here: a caller pushing back bytes it just drained is restoring
// state, not growing the queue beyond what it already held.
func (c *Chain) Undrain(p []byte) {
	c.mu.Lock()
	c.queue = append(append([]byte(nil), p...), c.queue...)
	c.mu.Unlock()
}

// Process drives pending Read/Write operations against the current queue
// state, invoking rdfn/wrfn if operations remain blocked. It must be called
// after every Fill/Drain/FailReads/FailWrites/Flush sequence (Read and Write
// already call it).
func (c *Chain) Process() {
	c.mu.Lock()
	for c.driveLocked() {
	}
	c.mu.Unlock()
}

func (c *Chain) driveLocked() bool {
	progressed := false
	for len(c.rdq) > 0 && c.serviceReadLocked(c.rdq[0]) {
		c.rdq = c.rdq[1:]
		progressed = true
	}
	for len(c.wrq) > 0 && c.serviceWriteLocked(c.wrq[0]) {
		c.wrq = c.wrq[1:]
		progressed = true
	}
	if progressed {
		return true
	}

	needRead := len(c.rdq) > 0 && c.rdfn != nil && !c.rdbusy
	needWrite := len(c.wrq) > 0 && c.wrfn != nil && !c.wrbusy
	if !needRead && !needWrite {
		return false
	}
	if needRead {
		c.rdbusy = true
	}
	if needWrite {
		c.wrbusy = true
	}

	c.mu.Unlock()
	var again bool
	if needRead && c.rdfn(c) {
		again = true
	}
	if needWrite && c.wrfn(c) {
		again = true
	}
	c.mu.Lock()
	if needRead {
		c.rdbusy = false
	}
	if needWrite {
		c.wrbusy = false
	}
	return again
}

// serviceReadLocked attempts to satisfy op from the queue. A read with
// min == 0 always completes on its first service attempt, whether or not
// any bytes were available.
func (c *Chain) serviceReadLocked(op *readOp) bool {
	if op.got < len(op.out) && len(c.queue) > 0 {
		op.got += c.drainLocked(op.out[op.got:])
	}
	*op.n = op.got
	if op.got >= op.min {
		op.t.Finish(result.Ok())
		return true
	}
	if !c.rderr.OK() {
		op.t.Finish(c.rderr)
		return true
	}
	return false
}

// serviceWriteLocked attempts to queue op's remaining bytes. An installed
// write-error preempts any further filling, so bytes are never queued past
// the point the error was installed.
func (c *Chain) serviceWriteLocked(op *writeOp) bool {
	if !c.wrerr.OK() {
		*op.n = op.got
		op.t.Finish(c.wrerr)
		return true
	}
	if op.got < len(op.ptr) {
		op.got += c.fillLocked(op.ptr[op.got:])
	}
	*op.n = op.got
	if op.got >= len(op.ptr) {
		op.t.Finish(result.Ok())
		return true
	}
	return false
}

// Read enqueues a read for at least min and at most len(out) bytes, starting
// t and finishing it (EOF or the sticky read error, on exhaustion) once
// satisfied. Process is called before Read returns, so a read that can be
// satisfied immediately from already-queued bytes finishes synchronously.
func (c *Chain) Read(t *task.Task, out []byte, n *int, min int) {
	if !t.Start() {
		return
	}
	op := &readOp{t: t, out: out, n: n, min: min}
	c.mu.Lock()
	c.rdq = append(c.rdq, op)
	c.mu.Unlock()
	c.Process()
}

// Write enqueues a write of len(ptr) bytes, starting t and finishing it once
// every byte is queued or the sticky write error fires.
func (c *Chain) Write(t *task.Task, ptr []byte, n *int) {
	if !t.Start() {
		return
	}
	op := &writeOp{t: t, ptr: ptr, n: n}
	c.mu.Lock()
	c.wrq = append(c.wrq, op)
	c.mu.Unlock()
	c.Process()
}
