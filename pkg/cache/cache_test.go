package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetAndGet(t *testing.T) {
	c := New[string, string]()
	c.Set("key1", "value1", time.Second)
	val, ok := c.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "value1", val)
}

func TestExpiration(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string, int]()
	c.now = func() time.Time { return now }
	c.Set("key1", 7, 100*time.Millisecond)

	now = now.Add(150 * time.Millisecond)
	_, ok := c.Get("key1")
	assert.False(t, ok, "expected expired key to return false")
}

func TestDelete(t *testing.T) {
	c := New[string, string]()
	c.Set("key1", "value1", time.Second)
	c.Delete("key1")
	_, ok := c.Get("key1")
	assert.False(t, ok)
}
