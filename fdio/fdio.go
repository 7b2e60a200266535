// Package fdio implements file-descriptor-backed Reader/Writer contracts
// over read(2)/write(2)/sendfile(2)/splice(2). A Reader/Writer pair that
// share a reactor.Manager register themselves for Readable/Writable
// interest on EAGAIN instead of busy-looping or blocking a goroutine.
package fdio

import (
	"io"
	"sync"

	"github.com/joeycumines/go-reactor/buffer"
	"github.com/joeycumines/go-reactor/dispatch"
	"github.com/joeycumines/go-reactor/internal/corelog"
	"github.com/joeycumines/go-reactor/options"
	"github.com/joeycumines/go-reactor/reactor"
	"github.com/joeycumines/go-reactor/result"
	"github.com/joeycumines/go-reactor/task"
	"golang.org/x/sys/unix"
)

// Reader implements io.Reader and io.Closer directly over a raw file
// descriptor, retrying EINTR and blocking (via a reactor.Manager, if bound)
// across EAGAIN instead of returning it to the caller.
type Reader struct {
	mu     sync.Mutex
	fd     int
	mgr    *reactor.Manager
	closed bool
}

// NewReader wraps fd for reading. mgr may be nil, in which case an EAGAIN
// from read(2) is returned to the caller as unix.EAGAIN instead of being
// awaited.
func NewReader(fd int, mgr *reactor.Manager) *Reader {
	return &Reader{fd: fd, mgr: mgr}
}

func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, result.New(result.FailedPrecondition, "reader closed").AsError()
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(r.fd, p)
		switch err {
		case nil:
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if r.mgr == nil {
				return 0, err
			}
			if werr := r.awaitReadable(); werr != nil {
				return 0, werr
			}
			continue
		default:
			return 0, err
		}
	}
}

func (r *Reader) awaitReadable() error {
	done := make(chan struct{})
	var once sync.Once
	// The poller is level-triggered, so the handler may fire again before
	// the registration is removed.
	tok, res := r.mgr.FD(r.fd, reactor.Readable, func(reactor.Data) result.Result {
		once.Do(func() { close(done) })
		return result.Ok()
	})
	if res.Failed() {
		return res.AsError()
	}
	<-done
	if rm := r.mgr.Remove(tok); rm.Failed() && rm.Code() != result.NotFound {
		return rm.AsError()
	}
	return nil
}

// Close marks the Reader closed. The underlying fd is not closed here;
// callers own the fd's lifecycle. A second Close returns
// FAILED_PRECONDITION.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return result.New(result.FailedPrecondition, "reader already closed").AsError()
	}
	r.closed = true
	return nil
}

// ReadAsync reads into out (at least min, at most len(out) bytes) without
// blocking the calling goroutine: the number of bytes read is recorded via
// n, and t finishes once the read completes, per the Task contract the
// rest of this module uses for asynchronous operations.
func ReadAsync(t *task.Task, r *Reader, d dispatcher, out []byte, n *int, min int) {
	if !t.Start() {
		return
	}
	d.Dispatch(t, func() result.Result {
		total := 0
		defer func() {
			if n != nil {
				*n = total
			}
		}()
		for total < min {
			got, err := r.Read(out[total:])
			total += got
			if err != nil {
				if err == io.EOF {
					return result.New(result.EOF, "end of stream")
				}
				return result.Errorf(result.Internal, "fdio read: %v", err)
			}
		}
		return result.Ok()
	})
}

// dispatcher is the minimal subset of dispatch.Dispatcher that ReadAsync
// needs, kept local so callers can hand in anything with a conforming
// Dispatch method.
type dispatcher interface {
	Dispatch(t *task.Task, cb dispatch.Callback)
}

// Writer implements io.Writer and io.Closer directly over a raw file
// descriptor, retrying short writes, EINTR, and (via a bound
// reactor.Manager) EAGAIN until len(p) bytes are written or an error
// occurs.
type Writer struct {
	mu     sync.Mutex
	fd     int
	mgr    *reactor.Manager
	closed bool
}

// NewWriter wraps fd for writing. mgr may be nil; see NewReader.
func NewWriter(fd int, mgr *reactor.Manager) *Writer {
	return &Writer{fd: fd, mgr: mgr}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, result.New(result.FailedPrecondition, "writer closed").AsError()
	}
	total := 0
	for total < len(p) {
		n, err := unix.Write(w.fd, p[total:])
		if n > 0 {
			total += n
		}
		switch err {
		case nil:
			continue
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if w.mgr == nil {
				return total, err
			}
			if werr := w.awaitWritable(); werr != nil {
				return total, werr
			}
			continue
		default:
			return total, err
		}
	}
	return total, nil
}

func (w *Writer) awaitWritable() error {
	done := make(chan struct{})
	var once sync.Once
	tok, res := w.mgr.FD(w.fd, reactor.Writable, func(reactor.Data) result.Result {
		once.Do(func() { close(done) })
		return result.Ok()
	})
	if res.Failed() {
		return res.AsError()
	}
	<-done
	if rm := w.mgr.Remove(tok); rm.Failed() && rm.Code() != result.NotFound {
		return rm.AsError()
	}
	return nil
}

// Close marks the Writer closed; see Reader.Close for fd ownership notes.
// A second Close returns FAILED_PRECONDITION.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return result.New(result.FailedPrecondition, "writer already closed").AsError()
	}
	w.closed = true
	return nil
}

// TransferMode selects the kernel strategy CopyFile leads with.
type TransferMode int

const (
	// TransferSystemDefault probes splice, then sendfile, then the
	// portable read/write loop.
	TransferSystemDefault TransferMode = iota
	TransferReadWrite
	TransferSendfile
	TransferSplice
)

// Options is the type-indexed configuration record Transfer looks up from
// an options.Bag. Transfer reads TransferMode and BlockSize (the block size
// for the portable loop); Manager and Pool are carried in the record but
// no fdio entry point reads them.
type Options struct {
	Manager      *reactor.Manager
	Pool         *buffer.Pool
	BlockSize    int
	TransferMode TransferMode
}

// CopyFile copies up to max bytes (or to EOF, when max < 0) from src to
// dst. It tries splice(2), then sendfile(2), then the portable read/write
// loop, moving to the next strategy whenever the current one fails with
// ENOSYS or EINVAL (which is how the kernel rejects a descriptor pair).
// Each downgrade is logged, since
// it's a silent performance cliff a caller would otherwise have no way to
// notice.
func CopyFile(dst, src *Reader2Writer, max int64) (int64, error) {
	return CopyFileMode(dst, src, max, TransferSystemDefault)
}

// Transfer is CopyFile configured through an options.Bag: the fdio Options
// record, if present, supplies the strategy preference and the block size
// for the portable loop.
func Transfer(dst, src *Reader2Writer, max int64, bag *options.Bag) (int64, error) {
	o := options.Get[Options](bag)
	return copyFile(dst, src, max, o.TransferMode, o.BlockSize)
}

// CopyFileMode is CopyFile with an explicit strategy preference; modes
// other than TransferReadWrite still downgrade on kernels or descriptor
// pairs that reject them.
func CopyFileMode(dst, src *Reader2Writer, max int64, mode TransferMode) (int64, error) {
	return copyFile(dst, src, max, mode, 0)
}

func copyFile(dst, src *Reader2Writer, max int64, mode TransferMode, blockSize int) (int64, error) {
	if mode == TransferSystemDefault || mode == TransferSplice {
		total, downgraded, err := spliceCopy(dst, src, max)
		if !downgraded {
			return total, err
		}
		// Partial progress before the downgrade still counts.
		return copyFileSendfile(dst, src, max, total, mode, blockSize)
	}
	return copyFileSendfile(dst, src, max, 0, mode, blockSize)
}

func copyFileSendfile(dst, src *Reader2Writer, max, total int64, mode TransferMode, blockSize int) (int64, error) {
	if mode == TransferReadWrite {
		return copyFileFallback(dst, src, max, total, blockSize)
	}
	for max < 0 || total < max {
		chunk := 1 << 20
		if max >= 0 {
			if remaining := max - total; remaining < int64(chunk) {
				chunk = int(remaining)
			}
		}
		n, err := unix.Sendfile(dst.fd, src.fd, nil, chunk)
		if err != nil {
			if err == unix.ENOSYS || err == unix.EINVAL {
				corelog.Get().Info().Str("reason", err.Error()).Log("fdio: sendfile unsupported, falling back to read/write loop")
				return copyFileFallback(dst, src, max, total, blockSize)
			}
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += int64(n)
	}
	return total, nil
}

// copyFileFallback continues a CopyFile transfer that's already moved total
// bytes via an ordinary Read/Write loop over the two raw descriptors.
func copyFileFallback(dst, src *Reader2Writer, max, total int64, blockSize int) (int64, error) {
	r := NewReader(src.fd, nil)
	w := NewWriter(dst.fd, nil)
	if blockSize <= 0 {
		blockSize = 32 * 1024
	}
	buf := make([]byte, blockSize)
	for max < 0 || total < max {
		chunk := buf
		if max >= 0 {
			if remaining := max - total; remaining < int64(len(chunk)) {
				chunk = buf[:remaining]
			}
		}
		n, err := r.Read(chunk)
		if n > 0 {
			if _, werr := w.Write(chunk[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// Reader2Writer is the minimal fd handle CopyFile needs from either side of
// a sendfile(2) copy.
type Reader2Writer struct{ fd int }

// FD wraps a raw descriptor for use with CopyFile.
func FD(fd int) *Reader2Writer { return &Reader2Writer{fd: fd} }
