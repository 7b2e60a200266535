package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

func TestZeroResultIsOK(t *testing.T) {
	var r Result
	assert.True(t, r.OK())
	assert.False(t, r.Failed())
	assert.Nil(t, r.AsError())
}

func TestEOFIsTerminalButNotFailure(t *testing.T) {
	r := New(EOF, "end of stream")
	assert.True(t, r.IsEOF())
	assert.False(t, r.OK())
	assert.False(t, r.Failed())
	require.Error(t, r.AsError())
	assert.True(t, errors.Is(r.AsError(), EOFError))
}

func TestErrorFormatting(t *testing.T) {
	r := Errorf(NotFound, "no such key %q", "a")
	assert.Equal(t, NotFound, r.Code())
	assert.Contains(t, r.Error(), "NOT_FOUND")
	assert.Contains(t, r.Error(), `no such key "a"`)
}

func TestWithErrnoSurfacesInMessageAndUnwrap(t *testing.T) {
	r := New(Internal, "read failed").WithErrno(unix.EBADF)
	assert.Contains(t, r.Error(), "bad file descriptor")
	assert.True(t, errors.Is(r, unix.EBADF))
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := errors.New("root cause")
	r := New(Unavailable, "wrapped").WithCause(cause)
	assert.True(t, errors.Is(r, cause))
}

func TestFromPanic(t *testing.T) {
	assert.Equal(t, Internal, FromPanic(errors.New("boom")).Code())
	assert.Equal(t, Internal, FromPanic("boom").Code())
	assert.Equal(t, Internal, FromPanic(42).Code())
	assert.Contains(t, FromPanic(42).Message(), "42")
}

func TestAndThen(t *testing.T) {
	called := false
	r := Ok().AndThen(func() Result {
		called = true
		return New(Aborted, "later failure")
	})
	assert.True(t, called)
	assert.Equal(t, Aborted, r.Code())

	called = false
	r = New(InvalidArgument, "bad input").AndThen(func() Result {
		called = true
		return Ok()
	})
	assert.False(t, called, "AndThen must short-circuit on failure")
	assert.Equal(t, InvalidArgument, r.Code())

	called = false
	r = New(EOF, "done").AndThen(func() Result {
		called = true
		return Ok()
	})
	assert.False(t, called, "AndThen must short-circuit on EOF")
}

func TestCodeStrings(t *testing.T) {
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "DEADLINE_EXCEEDED", DeadlineExceeded.String())
	assert.Equal(t, "WRONG_TYPE", WrongType.String())
	assert.Contains(t, Code(99).String(), "99")
}
