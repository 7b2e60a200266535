package chain

import (
	"io"
	"sync"

	"github.com/joeycumines/go-reactor/buffer"
	"github.com/joeycumines/go-reactor/result"
	"github.com/joeycumines/go-reactor/task"
)

// PipeReader and PipeWriter are the two independently closable ends of an
// in-process Pipe.
type PipeReader struct {
	c      *Chain
	mu     sync.Mutex
	closed bool
}

type PipeWriter struct {
	c      *Chain
	mu     sync.Mutex
	closed bool
}

// NewPipe returns a connected PipeReader/PipeWriter pair backed by a Chain
// with no owner callbacks. Closing the writer fails future reads with EOF
// once the queue drains; closing the reader fails future writes with
// FAILED_PRECONDITION.
func NewPipe(pool *buffer.Pool, maxBuffers int) (*PipeReader, *PipeWriter) {
	c := New(nil, nil, pool, maxBuffers)
	return &PipeReader{c: c}, &PipeWriter{c: c}
}

// Read implements io.Reader, blocking until at least one byte is available,
// the pipe's writer end is closed (io.EOF), or the pipe's reader end has
// itself been closed.
func (r *PipeReader) Read(p []byte) (int, error) {
	min := 1
	if len(p) == 0 {
		min = 0
	}
	t := task.New()
	done := make(chan struct{})
	t.OnFinished(func(result.Result) { close(done) })
	var n int
	r.c.Read(t, p, &n, min)
	<-done

	res := t.Result()
	if res.Code() == result.EOF {
		return n, io.EOF
	}
	if res.Failed() {
		return n, res.AsError()
	}
	return n, nil
}

// Close marks the reader end closed: both sides of the shared Chain fail
// with FAILED_PRECONDITION and any queued bytes are dropped, since nothing
// will ever read them. A second Close returns FAILED_PRECONDITION.
func (r *PipeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return result.New(result.FailedPrecondition, "pipe reader already closed").AsError()
	}
	r.closed = true
	r.c.FailReads(result.New(result.FailedPrecondition, "pipe reader closed"))
	r.c.FailWrites(result.New(result.FailedPrecondition, "pipe reader closed"))
	r.c.Flush()
	r.c.Process()
	return nil
}

// Write implements io.Writer, blocking until every byte of p is queued, the
// pipe's reader end has been closed, or the writer end has itself been
// closed.
func (w *PipeWriter) Write(p []byte) (int, error) {
	t := task.New()
	done := make(chan struct{})
	t.OnFinished(func(result.Result) { close(done) })
	var n int
	w.c.Write(t, p, &n)
	<-done

	res := t.Result()
	if res.Failed() {
		return n, res.AsError()
	}
	return n, nil
}

// Close marks the writer end closed: reads observe EOF once the queue
// drains, and further writes fail with FAILED_PRECONDITION. A second Close
// returns FAILED_PRECONDITION.
func (w *PipeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return result.New(result.FailedPrecondition, "pipe writer already closed").AsError()
	}
	w.closed = true
	w.c.FailReads(result.New(result.EOF, "pipe writer closed"))
	w.c.FailWrites(result.New(result.FailedPrecondition, "pipe writer closed"))
	w.c.Process()
	return nil
}
