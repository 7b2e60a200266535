package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AllocatesZeroed(t *testing.T) {
	o := New(8)
	require.Equal(t, 8, o.Len())
	assert.Equal(t, make([]byte, 8), o.Bytes())
	assert.False(t, o.IsZero())
}

func TestPool_TakeGiveRecycles(t *testing.T) {
	p := NewPool(16, 4)
	o := p.Take()
	require.Equal(t, 16, o.Len())

	copy(o.Bytes(), "sensitive")
	p.Give(o)
	require.Equal(t, 1, p.Len())

	o2 := p.Take()
	assert.Equal(t, make([]byte, 16), o2.Bytes(), "recycled buffers must come back wiped")
	assert.Equal(t, 0, p.Len())
}

func TestPool_OverflowGiveDrops(t *testing.T) {
	p := NewPool(4, 1)
	p.Give(p.Take())
	p.Give(p.Take())
	assert.Equal(t, 1, p.Len())
}

func TestPool_UnderflowTakeAllocates(t *testing.T) {
	p := NewPool(4, 1)
	o := p.Take()
	assert.Equal(t, 4, o.Len())
}

func TestPool_MismatchedGivePanics(t *testing.T) {
	p := NewPool(4, 1)
	assert.Panics(t, func() { p.Give(New(8)) })
}

func TestPool_ZeroSizePanics(t *testing.T) {
	assert.Panics(t, func() { NewPool(0, 1) })
}

func TestPool_GiveZeroOwnedIsNoop(t *testing.T) {
	p := NewPool(4, 1)
	p.Give(Owned{})
	assert.Equal(t, 0, p.Len())
}
