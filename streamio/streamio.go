// Package streamio provides the byte-stream adapter set used across this
// module, expressed through Go's io.Reader/io.Writer/io.Closer idiom: a
// thin set of factories (BufferReader, StringReader, NullReader,
// ZeroReader, DiscardWriter, FullWriter, LimitedReader, IgnoreCloseReader,
// IgnoreCloseWriter)
// rather than a parallel interface hierarchy, since stdlib io.ReadAtLeast,
// io.LimitReader, and io.CopyN already express the min/max byte-count
// contract the adapters share.
package streamio

import (
	"bytes"
	"io"
	"strings"

	"github.com/joeycumines/go-reactor/result"
)

// ReadAtLeast reads into buf until at least min bytes have been read,
// buf is full, or an error occurs.
func ReadAtLeast(r io.Reader, buf []byte, min int) (int, error) {
	return io.ReadAtLeast(r, buf, min)
}

// LimitedReader returns a Reader that reaches EOF after reading the first
// n bytes of r.
func LimitedReader(r io.Reader, n int64) io.Reader { return io.LimitReader(r, n) }

// StringReader returns a Reader that produces bytes from s.
func StringReader(s string) io.Reader { return strings.NewReader(s) }

// BufferReader returns a Reader that produces bytes from buf.
func BufferReader(buf []byte) io.Reader { return bytes.NewReader(buf) }

type nullReader struct{}

func (nullReader) Read([]byte) (int, error) { return 0, io.EOF }

// NullReader returns a Reader that is always at EOF.
func NullReader() io.Reader { return nullReader{} }

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// ZeroReader returns a Reader that yields an unending stream of NUL
// bytes.
func ZeroReader() io.Reader { return zeroReader{} }

// DiscardWriter returns a Writer that throws away everything written to
// it.
func DiscardWriter() io.Writer { return io.Discard }

type fullWriter struct{}

func (fullWriter) Write([]byte) (int, error) {
	return 0, result.New(result.ResourceExhausted, "simulated full disk").AsError()
}

// FullWriter returns a Writer that simulates a full disk, failing every
// write with RESOURCE_EXHAUSTED.
func FullWriter() io.Writer { return fullWriter{} }

// ignoreCloseReader wraps an io.ReadCloser, turning Close into a no-op.
type ignoreCloseReader struct {
	io.Reader
}

func (ignoreCloseReader) Close() error { return nil }

// IgnoreCloseReader wraps rc so Close is a no-op but every other call is
// forwarded.
func IgnoreCloseReader(rc io.ReadCloser) io.ReadCloser { return ignoreCloseReader{Reader: rc} }

type ignoreCloseWriter struct {
	io.Writer
}

func (ignoreCloseWriter) Close() error { return nil }

// IgnoreCloseWriter wraps wc so Close is a no-op but every other call is
// forwarded.
func IgnoreCloseWriter(wc io.WriteCloser) io.WriteCloser { return ignoreCloseWriter{Writer: wc} }

// Copy copies from src to dst until src reaches EOF or an error occurs,
// preferring src's WriterTo or dst's ReaderFrom when available. This is
// stdlib io.Copy's contract, surfaced under this package so callers
// needn't import "io" directly alongside the rest of this package's
// factories.
func Copy(dst io.Writer, src io.Reader) (int64, error) { return io.Copy(dst, src) }

// CopyN copies n bytes (or until an error) from src to dst.
func CopyN(dst io.Writer, src io.Reader, n int64) (int64, error) { return io.CopyN(dst, src, n) }
