package task

import (
	"sync"
	"testing"

	"github.com/joeycumines/go-reactor/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_StartFinish(t *testing.T) {
	tk := New()
	assert.Equal(t, Ready, tk.State())
	assert.True(t, tk.Start())
	assert.True(t, tk.IsRunning())

	tk.FinishOK()
	assert.Equal(t, Done, tk.State())
	assert.True(t, tk.Result().OK())
}

func TestTask_CancelBeforeStart(t *testing.T) {
	tk := New()
	tk.Cancel()
	assert.Equal(t, Done, tk.State())
	assert.Equal(t, result.Cancelled, tk.Result().Code())

	assert.False(t, tk.Start())
}

func TestTask_CancelWhileRunningRequiresExplicitFinish(t *testing.T) {
	tk := New()
	require.True(t, tk.Start())
	tk.Cancel()
	assert.Equal(t, Cancelling, tk.State())

	tk.FinishCancel()
	assert.Equal(t, Done, tk.State())
	assert.Equal(t, result.Cancelled, tk.Result().Code())
}

func TestTask_DoubleFinishIsIgnored(t *testing.T) {
	tk := New()
	require.True(t, tk.Start())
	tk.FinishOK()
	tk.Finish(result.New(result.Internal, "should not stick"))
	assert.True(t, tk.Result().OK())
}

func TestTask_OnFinishedRunsOnceInOrder(t *testing.T) {
	tk := New()
	require.True(t, tk.Start())

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 3; i++ {
		i := i
		tk.OnFinished(func(result.Result) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	tk.FinishOK()
	assert.Equal(t, []int{0, 1, 2}, order)

	// registering after Done runs inline, immediately.
	called := false
	tk.OnFinished(func(result.Result) { called = true })
	assert.True(t, called)
}

func TestTask_AddSubtaskPropagatesCancel(t *testing.T) {
	parent := New()
	child := New()
	require.True(t, parent.Start())
	require.True(t, child.Start())

	parent.AddSubtask(child)
	parent.Cancel()

	assert.Equal(t, Cancelling, child.State())
}

func TestTask_AddSubtaskToFinishedParentCancelsChildImmediately(t *testing.T) {
	parent := New()
	require.True(t, parent.Start())
	parent.FinishOK()

	child := New()
	parent.AddSubtask(child)
	assert.Equal(t, Done, child.State())
	assert.Equal(t, result.Cancelled, child.Result().Code())
}

func TestTask_ChildFinishDoesNotFinishParent(t *testing.T) {
	parent := New()
	child := New()
	require.True(t, parent.Start())
	require.True(t, child.Start())
	parent.AddSubtask(child)

	child.FinishOK()
	assert.Equal(t, Running, parent.State())
}

func TestTask_Expire(t *testing.T) {
	tk := New()
	require.True(t, tk.Start())
	tk.Expire()
	assert.Equal(t, result.DeadlineExceeded, tk.Result().Code())
}
