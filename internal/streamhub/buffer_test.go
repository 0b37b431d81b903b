package streamhub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferDropOldestOverflow(t *testing.T) {
	b := newBuffer(2, DropOldest)
	b.push("", []byte("1"))
	b.push("", []byte("2"))
	b.push("", []byte("3"))

	items := b.drain()
	require.Len(t, items, 2)
	assert.Equal(t, "2", string(items[0].data))
	assert.Equal(t, "3", string(items[1].data))
}

func TestBufferKeepLatestCollapses(t *testing.T) {
	b := newBuffer(10, KeepLatest)
	b.push("", []byte("1"))
	b.push("", []byte("2"))
	b.push("", []byte("3"))

	items := b.drain()
	require.Len(t, items, 1)
	assert.Equal(t, "3", string(items[0].data))
}

func TestBufferDedupCollapsesByKey(t *testing.T) {
	b := newBuffer(10, Dedup)
	b.push("svc:CPU", []byte("1"))
	b.push("svc:MEMORY", []byte("2"))
	b.push("svc:CPU", []byte("3"))

	items := b.drain()
	require.Len(t, items, 2)
	assert.Equal(t, "3", string(items[0].data))
	assert.Equal(t, "2", string(items[1].data))
}

func TestBufferCloseDropsFurtherPushes(t *testing.T) {
	b := newBuffer(10, DropOldest)
	b.close()
	b.push("", []byte("after close"))
	assert.Empty(t, b.drain())
}

func TestBufferDrainClearsItems(t *testing.T) {
	b := newBuffer(10, DropOldest)
	b.push("", []byte("1"))
	first := b.drain()
	require.Len(t, first, 1)
	assert.Empty(t, b.drain())
}
