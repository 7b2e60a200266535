package streamio

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catrate "github.com/joeycumines/go-catrate"
)

func TestRateLimitedWriter_PassesThroughUnderLimit(t *testing.T) {
	var buf bytes.Buffer
	limiter := catrate.NewLimiter(map[time.Duration]int{time.Second: 10})
	w := NewRateLimitedWriter(&buf, limiter, "cat")

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())
}

func TestRateLimitedWriter_SleepsWhenOverLimit(t *testing.T) {
	var buf bytes.Buffer
	limiter := catrate.NewLimiter(map[time.Duration]int{time.Hour: 1})
	w := NewRateLimitedWriter(&buf, limiter, "cat")

	var slept time.Duration
	w.sleep = func(d time.Duration) { slept = d }

	_, err := w.Write([]byte("a"))
	require.NoError(t, err)
	_, err = w.Write([]byte("b"))
	require.NoError(t, err)

	assert.Greater(t, slept, time.Duration(0))
	assert.Equal(t, "ab", buf.String())
}
