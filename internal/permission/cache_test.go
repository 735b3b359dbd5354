package permission

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"axon/internal/approval"
)

func TestCache_RememberAndLookup(t *testing.T) {
	cache := NewCache()

	_, ok := cache.Lookup("s1", "shell_execute")
	assert.False(t, ok)

	cache.Remember("s1", "shell_execute", approval.DecisionSession)
	d, ok := cache.Lookup("s1", "shell_execute")
	assert.True(t, ok)
	assert.Equal(t, approval.DecisionSession, d)

	// Scoped per session.
	_, ok = cache.Lookup("s2", "shell_execute")
	assert.False(t, ok)
}

func TestCache_OneShotDecisionsNotStored(t *testing.T) {
	cache := NewCache()

	for _, d := range []approval.Decision{approval.DecisionOnce, approval.DecisionRejected, approval.DecisionTimeout} {
		cache.Remember("s1", "write_file", d)
		_, ok := cache.Lookup("s1", "write_file")
		assert.False(t, ok, string(d))
	}
}

func TestCache_NeverPersists(t *testing.T) {
	cache := NewCache()

	cache.Remember("s1", "shell_execute", approval.DecisionNever)
	d, ok := cache.Lookup("s1", "shell_execute")
	assert.True(t, ok)
	assert.Equal(t, approval.DecisionNever, d)
	assert.False(t, d.Allows())
}

func TestCache_NewResolutionOverridesNever(t *testing.T) {
	cache := NewCache()

	cache.Remember("s1", "shell_execute", approval.DecisionNever)
	// A fresh explicit resolution for the same tool replaces the old one;
	// lookup always reflects the most recent remembered decision.
	cache.Remember("s1", "shell_execute", approval.DecisionSession)

	d, ok := cache.Lookup("s1", "shell_execute")
	assert.True(t, ok)
	assert.Equal(t, approval.DecisionSession, d)
}

func TestCache_Clear(t *testing.T) {
	cache := NewCache()

	cache.Remember("s1", "shell_execute", approval.DecisionSession)
	cache.Remember("s1", "write_file", approval.DecisionNever)
	cache.Remember("s2", "read_file", approval.DecisionSession)

	cache.Clear("s1")

	_, ok := cache.Lookup("s1", "shell_execute")
	assert.False(t, ok)
	_, ok = cache.Lookup("s1", "write_file")
	assert.False(t, ok)

	d, ok := cache.Lookup("s2", "read_file")
	assert.True(t, ok)
	assert.Equal(t, approval.DecisionSession, d)
}

func TestCache_ConcurrentSessions(t *testing.T) {
	cache := NewCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := fmt.Sprintf("session-%d", i)
			cache.Remember(session, "shell_execute", approval.DecisionSession)
			d, ok := cache.Lookup(session, "shell_execute")
			assert.True(t, ok)
			assert.Equal(t, approval.DecisionSession, d)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, cache.Len())
}
