package reactor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-reactor/result"
)

func TestPollPoller_AddWaitRemove(t *testing.T) {
	p, err := newPollPoller()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.True(t, p.Add(int(r.Fd()), Readable).OK())

	_, err = w.Write([]byte("z"))
	require.NoError(t, err)

	var out []ReadyFD
	res := p.Wait(&out, 2000)
	require.True(t, res.OK())
	require.Len(t, out, 1)
	assert.Equal(t, int(r.Fd()), out[0].FD)
	assert.True(t, out[0].Set.Has(Readable))

	require.True(t, p.Remove(int(r.Fd())).OK())
	assert.Equal(t, result.NotFound, p.Remove(int(r.Fd())).Code())
}

func TestPollPoller_WaitTimesOut(t *testing.T) {
	p, err := newPollPoller()
	require.NoError(t, err)
	defer p.Close()

	start := time.Now()
	var out []ReadyFD
	res := p.Wait(&out, 50)
	require.True(t, res.OK())
	assert.Empty(t, out)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPollPoller_AddWakesBlockedWait(t *testing.T) {
	p, err := newPollPoller()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Registration happens after the wait is already blocked; the
		// internal wake must get the new fd into the polled list.
		var out []ReadyFD
		res := p.Wait(&out, -1)
		assert.True(t, res.OK())
		assert.Len(t, out, 1)
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, p.Add(int(r.Fd()), Readable).OK())
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked wait never observed the late registration")
	}
}

func TestPollPoller_DoubleCloseFails(t *testing.T) {
	p, err := newPollPoller()
	require.NoError(t, err)
	require.True(t, p.Close().OK())
	assert.False(t, p.Close().OK())
}
