package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamIsDeterministic(t *testing.T) {
	a := New(42).Stream(StreamResample)
	b := New(42).Stream(StreamResample)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestStreamsAreIsolated(t *testing.T) {
	p := New(42)
	q := New(42)

	// Drawing from another stream first must not shift StreamSplit.
	_ = p.Stream(StreamResample).Int63()
	assert.Equal(t, p.Stream(StreamSplit).Int63(), q.Stream(StreamSplit).Int63())
}

func TestStreamIsCached(t *testing.T) {
	p := New(7)
	assert.Same(t, p.Stream(StreamTree(3)), p.Stream(StreamTree(3)))
	assert.Equal(t, int64(7), p.Seed())
}

func TestDeriveDiffersPerName(t *testing.T) {
	assert.NotEqual(t, Derive(42, StreamTree(0)).Int63(), Derive(42, StreamTree(1)).Int63())
	assert.Equal(t, Derive(42, StreamTree(5)).Int63(), Derive(42, StreamTree(5)).Int63())
}
