package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockKeyAt(t *testing.T) {
	block := &Block{ID: "shorts-night", ContentKeys: []string{"f1", "f2", "f3"}}

	assert.Equal(t, 3, block.Len())
	assert.False(t, block.Empty())

	key, ok := block.KeyAt(0)
	assert.True(t, ok)
	assert.Equal(t, "f1", key)

	key, ok = block.KeyAt(2)
	assert.True(t, ok)
	assert.Equal(t, "f3", key)

	_, ok = block.KeyAt(3)
	assert.False(t, ok)

	_, ok = block.KeyAt(-1)
	assert.False(t, ok)
}

func TestEmptyBlock(t *testing.T) {
	block := &Block{ID: "empty"}
	assert.True(t, block.Empty())

	_, ok := block.KeyAt(0)
	assert.False(t, ok)
}
