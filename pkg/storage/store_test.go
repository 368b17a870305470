package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_addGetRemove(t *testing.T) {
	s := NewStore[string]()

	_, ok := s.Get("t1")
	assert.False(t, ok)

	s.Add("t1", "a")
	got, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "a", got)

	// last writer wins
	s.Add("t1", "b")
	got, _ = s.Get("t1")
	assert.Equal(t, "b", got)

	s.Remove("t1")
	_, ok = s.Get("t1")
	assert.False(t, ok)

	// removing an absent key is a no-op
	s.Remove("t1")
}

func TestStore_listener(t *testing.T) {
	s := NewStore[int]()

	type event struct {
		key     string
		value   int
		present bool
	}
	var (
		mu     sync.Mutex
		events []event
	)
	s.Register(func(key string, value int, present bool) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event{key, value, present})
	})

	s.Add("t1", 1)
	s.Remove("t1")
	s.Remove("absent")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, event{"t1", 1, true}, events[0])
	assert.Equal(t, event{"t1", 0, false}, events[1])
}

func TestStore_concurrentDisjointKeys(t *testing.T) {
	s := NewStore[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("t%d", i)
			for j := 0; j < 100; j++ {
				s.Add(key, j)
				if _, ok := s.Get(key); !ok {
					t.Errorf("key %s vanished", key)
					return
				}
			}
			s.Remove(key)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, s.Len())
}

func TestKeyMutex(t *testing.T) {
	t.Run("same key serializes", func(t *testing.T) {
		k := NewKeyMutex()
		var counter int

		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				k.Lock("t1")
				defer k.Unlock("t1")
				counter++
			}()
		}
		wg.Wait()
		assert.Equal(t, 100, counter)
		assert.Empty(t, k.locks)
	})

	t.Run("distinct keys do not block", func(t *testing.T) {
		k := NewKeyMutex()
		k.Lock("t1")
		defer k.Unlock("t1")

		done := make(chan struct{})
		go func() {
			k.Lock("t2")
			k.Unlock("t2")
			close(done)
		}()
		<-done
	})

	t.Run("unlock of unlocked key panics", func(t *testing.T) {
		k := NewKeyMutex()
		assert.Panics(t, func() { k.Unlock("t1") })
	})
}
