package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/sente/internal/model"
)

func TestCache_LookupInsert(t *testing.T) {
	c := New(10, time.Second)

	// Miss on empty cache.
	_, ok := c.Lookup("u1", "hp5_mp3_e2")
	assert.False(t, ok)

	d := model.Decision{Action: "basic_attack", Confidence: 0.9}
	c.Insert("u1", "hp5_mp3_e2", d)

	got, ok := c.Lookup("u1", "hp5_mp3_e2")
	require.True(t, ok)
	assert.Equal(t, d, got)
}

func TestCache_KeyIncludesUnit(t *testing.T) {
	c := New(10, time.Second)
	c.Insert("u1", "fp", model.Decision{Action: "attack"})

	// Same fingerprint, different unit: no sharing.
	_, ok := c.Lookup("u2", "fp")
	assert.False(t, ok)
}

func TestCache_StaleEntryEvictedOnRead(t *testing.T) {
	c := New(10, 10*time.Millisecond)
	c.Insert("u1", "fp", model.Decision{Action: "attack"})

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Lookup("u1", "fp")
	assert.False(t, ok, "stale entry should miss")
	assert.Equal(t, 0, c.Len(), "stale entry should be evicted on read")
}

func TestCache_HitCount(t *testing.T) {
	c := New(10, time.Second)
	c.Insert("u1", "fp", model.Decision{Action: "attack"})

	c.Lookup("u1", "fp")
	c.Lookup("u1", "fp")

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 2, c.entries[Key("u1", "fp")].HitCount)
}

func TestCache_CapacityEviction(t *testing.T) {
	c := New(10, time.Minute)

	for i := 0; i < 15; i++ {
		c.Insert("u1", fmt.Sprintf("fp%02d", i), model.Decision{Action: "attack"})
		// Distinct timestamps so oldest-first ordering is deterministic.
		time.Sleep(time.Millisecond)
	}

	assert.LessOrEqual(t, c.Len(), 10)

	// The 5 oldest fingerprints are gone.
	for i := 0; i < 5; i++ {
		_, ok := c.Lookup("u1", fmt.Sprintf("fp%02d", i))
		assert.False(t, ok, "fp%02d should have been evicted", i)
	}
	// The 5 newest are still present.
	for i := 10; i < 15; i++ {
		_, ok := c.Lookup("u1", fmt.Sprintf("fp%02d", i))
		assert.True(t, ok, "fp%02d should still be cached", i)
	}
}

func TestCache_SetMaxSizeShrinkEvictsBatch(t *testing.T) {
	c := New(20, time.Minute)
	for i := 0; i < 20; i++ {
		c.Insert("u1", fmt.Sprintf("fp%02d", i), model.Decision{Action: "attack"})
		time.Sleep(time.Millisecond)
	}

	c.SetMaxSize(5)
	assert.Equal(t, 5, c.Len())

	// Newest survive the shrink.
	_, ok := c.Lookup("u1", "fp19")
	assert.True(t, ok)
	_, ok = c.Lookup("u1", "fp00")
	assert.False(t, ok)
}

func TestCache_Clear(t *testing.T) {
	c := New(10, time.Minute)
	c.Insert("u1", "fp", model.Decision{Action: "attack"})
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
