package streamio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringReader(t *testing.T) {
	r := StringReader("hello")
	buf := make([]byte, 5)
	n, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestBufferReader(t *testing.T) {
	r := BufferReader([]byte("abc"))
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestNullReader(t *testing.T) {
	buf := make([]byte, 4)
	n, err := NullReader().Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestZeroReader(t *testing.T) {
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = 0xFF
	}
	n, err := ZeroReader().Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, make([]byte, 8), buf)
}

func TestLimitedReader(t *testing.T) {
	r := LimitedReader(ZeroReader(), 3)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDiscardWriter(t *testing.T) {
	n, err := DiscardWriter().Write([]byte("xyz"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFullWriter(t *testing.T) {
	n, err := FullWriter().Write([]byte("xyz"))
	assert.Equal(t, 0, n)
	assert.Error(t, err)
}

func TestIgnoreCloseReader(t *testing.T) {
	rc := io.NopCloser(bytes.NewReader([]byte("a")))
	wrapped := IgnoreCloseReader(rc)
	assert.NoError(t, wrapped.Close())
}

func TestIgnoreCloseWriter(t *testing.T) {
	var buf bytes.Buffer
	wc := nopWriteCloser{&buf}
	wrapped := IgnoreCloseWriter(wc)
	assert.NoError(t, wrapped.Close())
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestCopy(t *testing.T) {
	var dst bytes.Buffer
	n, err := Copy(&dst, StringReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", dst.String())
}

func TestReadAtLeast(t *testing.T) {
	buf := make([]byte, 10)
	n, err := ReadAtLeast(StringReader("short"), buf, 3)
	require.NoError(t, err)
	assert.Equal(t, "short", string(buf[:n]))
}

func TestLimitedReader_BudgetThenEOF(t *testing.T) {
	r := LimitedReader(StringReader("abcdef"), 4)

	buf := make([]byte, 3)
	n, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "d", string(buf[:n]))

	n, err = r.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestLimitedReader_CopyDrainsBudgetOnce(t *testing.T) {
	r := LimitedReader(StringReader("abcdef"), 4)

	var dst bytes.Buffer
	n, err := Copy(&dst, r)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "abcd", dst.String())

	n, err = Copy(&dst, r)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
