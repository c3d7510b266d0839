package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache(t *testing.T) {
	c := NewCache[int]()

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("b", 2)
	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a", "b"}, c.Keys())

	c.Delete("a", "missing")
	assert.Equal(t, []string{"b"}, c.Keys())
}
