package drug

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInfoCache(t *testing.T) {
	disabled := newInfoCache(0, time.Hour)
	disabled.Set("A", "x")
	_, ok := disabled.Get("A")
	assert.False(t, ok)
	assert.Zero(t, disabled.Len())

	cache := newInfoCache(1, time.Hour)
	cache.Set("A", "a")
	cache.Set("B", "b")
	_, ok = cache.Get("A")
	assert.False(t, ok)
	details, ok := cache.Get("B")
	assert.True(t, ok)
	assert.Equal(t, "b", details)
	assert.Equal(t, 1, cache.Len())
}
