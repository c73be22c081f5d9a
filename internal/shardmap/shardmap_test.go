package shardmap

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	m := New[int]()

	_, ok := m.Get("missing")
	assert.False(t, ok)

	m.Set("a", 1)
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	m.Delete("a")
	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestUpdateIsAtomicPerKey(t *testing.T) {
	m := New[int]()
	const n = 500

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m.Update("counter", func(cur int, found bool) int {
				return cur + 1
			})
		}()
	}
	wg.Wait()

	v, ok := m.Get("counter")
	require.True(t, ok)
	assert.Equal(t, n, v)
}

func TestLenAndRange(t *testing.T) {
	m := New[int]()
	for i := 0; i < 50; i++ {
		m.Set("key-"+strconv.Itoa(i), i)
	}
	assert.Equal(t, 50, m.Len())

	seen := 0
	m.Range(func(key string, value int) bool {
		seen++
		return true
	})
	assert.Equal(t, 50, seen)
}
