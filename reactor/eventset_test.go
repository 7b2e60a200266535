package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_UnionIntersectHas(t *testing.T) {
	a := Readable | Hangup
	b := Writable | Hangup

	assert.Equal(t, Readable|Writable|Hangup, a.Union(b))
	assert.Equal(t, Hangup, a.Intersect(b))
	assert.True(t, a.Has(Readable))
	assert.False(t, a.Has(Writable))
	assert.True(t, a.Has(Readable|Hangup))
}

func TestSet_String(t *testing.T) {
	assert.Equal(t, "none", Set(0).String())
	assert.Equal(t, "readable", Readable.String())
	assert.Equal(t, "readable|writable", (Readable | Writable).String())
}

func TestToken_AreUnique(t *testing.T) {
	seen := make(map[Token]bool)
	for i := 0; i < 1000; i++ {
		tok := newToken()
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}
