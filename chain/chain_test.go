package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-reactor/buffer"
	"github.com/joeycumines/go-reactor/result"
	"github.com/joeycumines/go-reactor/task"
)

func TestChain_WriteThenReadSynchronous(t *testing.T) {
	c := New(nil, nil, nil, 0)

	wt := task.New()
	var wn int
	c.Write(wt, []byte("hello"), &wn)
	require.Equal(t, task.Done, wt.State())
	assert.True(t, wt.Result().OK())
	assert.Equal(t, 5, wn)

	rt := task.New()
	out := make([]byte, 5)
	var rn int
	c.Read(rt, out, &rn, 5)
	require.Equal(t, task.Done, rt.State())
	assert.True(t, rt.Result().OK())
	assert.Equal(t, "hello", string(out[:rn]))
}

func TestChain_ReadBlocksUntilMinSatisfied(t *testing.T) {
	c := New(nil, nil, nil, 0)

	rt := task.New()
	out := make([]byte, 10)
	var rn int
	c.Read(rt, out, &rn, 10)
	assert.Equal(t, task.Running, rt.State())

	wt := task.New()
	var wn int
	c.Write(wt, []byte("0123456789"), &wn)
	assert.True(t, wt.Result().OK())

	assert.Equal(t, task.Done, rt.State())
	assert.True(t, rt.Result().OK())
	assert.Equal(t, 10, rn)
}

func TestChain_FailReadsEmitsEOFOnceDrained(t *testing.T) {
	c := New(nil, nil, nil, 0)

	wt := task.New()
	var wn int
	c.Write(wt, []byte("ab"), &wn)

	c.FailReads(result.New(result.EOF, "closed"))
	c.Process()

	rt := task.New()
	out := make([]byte, 2)
	var rn int
	c.Read(rt, out, &rn, 2)
	assert.True(t, rt.Result().OK())
	assert.Equal(t, 2, rn)

	rt2 := task.New()
	var rn2 int
	c.Read(rt2, out, &rn2, 1)
	assert.Equal(t, result.EOF, rt2.Result().Code())
}

func TestChain_FailWritesRejectsFutureWrites(t *testing.T) {
	c := New(nil, nil, nil, 0)
	c.FailWrites(result.New(result.FailedPrecondition, "closed for writes"))

	wt := task.New()
	var wn int
	c.Write(wt, []byte("x"), &wn)
	assert.Equal(t, result.FailedPrecondition, wt.Result().Code())
}

func TestChain_CapacityBoundedByPool(t *testing.T) {
	pool := buffer.NewPool(4, 2)
	c := New(nil, nil, pool, 1) // capacity == 4 bytes

	wt := task.New()
	var wn int
	c.Write(wt, []byte("abcdef"), &wn)
	assert.Equal(t, task.Running, wt.State())
	assert.Equal(t, 4, wn)

	rt := task.New()
	out := make([]byte, 4)
	var rn int
	c.Read(rt, out, &rn, 4)
	assert.Equal(t, "abcd", string(out[:rn]))
}

func TestChain_UndrainPrependsBytes(t *testing.T) {
	c := New(nil, nil, nil, 0)

	wt := task.New()
	var wn int
	c.Write(wt, []byte("cd"), &wn)

	out := make([]byte, 2)
	var rn int
	rt := task.New()
	c.Read(rt, out, &rn, 2)
	require.Equal(t, "cd", string(out[:rn]))

	c.Undrain([]byte("ab"))
	assert.Equal(t, 2, c.Queued())

	out2 := make([]byte, 4)
	var rn2 int
	rt2 := task.New()
	c.Write(task.New(), []byte("ef"), new(int))
	c.Read(rt2, out2, &rn2, 4)
	assert.Equal(t, "abef", string(out2[:rn2]))
}

func TestChain_Flush(t *testing.T) {
	c := New(nil, nil, nil, 0)
	wt := task.New()
	var wn int
	c.Write(wt, []byte("data"), &wn)
	assert.Equal(t, 4, c.Queued())

	c.Flush()
	assert.Equal(t, 0, c.Queued())
}
