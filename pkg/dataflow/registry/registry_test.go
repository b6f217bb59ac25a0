package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r := New[string, int]()
	assert.NotNil(t, r)
	assert.Equal(t, 0, r.Len())
}

func TestRegisterAndGet(t *testing.T) {
	r := New[string, int]()

	assert.False(t, r.Register("one", 1))
	assert.False(t, r.Register("two", 2))

	v, ok := r.Get("one")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Get("three")
	assert.False(t, ok)
	assert.Equal(t, 0, v)
}

func TestRegisterReportsReplacement(t *testing.T) {
	r := New[string, string]()

	assert.False(t, r.Register("key", "old"))
	assert.True(t, r.Register("key", "new"))

	v, ok := r.Get("key")
	require.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, r.Len())
}

func TestDelete(t *testing.T) {
	r := New[string, int]()
	r.Register("a", 1)

	assert.True(t, r.Delete("a"))
	assert.False(t, r.Delete("a"))
	assert.False(t, r.Has("a"))
}

func TestKeysAndValuesAreOrdered(t *testing.T) {
	r := New[string, int]()
	r.Register("charlie", 3)
	r.Register("alpha", 1)
	r.Register("bravo", 2)

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, r.Keys())
	assert.Equal(t, []int{1, 2, 3}, r.Values())
}

func TestRange(t *testing.T) {
	t.Run("visits in key order", func(t *testing.T) {
		r := New[int, string]()
		r.Register(3, "c")
		r.Register(1, "a")
		r.Register(2, "b")

		var seen []int
		r.Range(func(k int, _ string) bool {
			seen = append(seen, k)
			return true
		})
		assert.Equal(t, []int{1, 2, 3}, seen)
	})

	t.Run("stops early", func(t *testing.T) {
		r := New[int, string]()
		for i := 0; i < 10; i++ {
			r.Register(i, "x")
		}

		count := 0
		r.Range(func(int, string) bool {
			count++
			return count < 3
		})
		assert.Equal(t, 3, count)
	})

	t.Run("mutation during iteration is safe", func(t *testing.T) {
		r := New[string, int]()
		r.Register("a", 1)
		r.Register("b", 2)

		r.Range(func(k string, _ int) bool {
			r.Delete(k)
			r.Register(k+"-copy", 0)
			return true
		})
		assert.Equal(t, []string{"a-copy", "b-copy"}, r.Keys())
	})
}

func TestConcurrentAccess(t *testing.T) {
	r := New[int, int]()
	var wg sync.WaitGroup
	var reads atomic.Int64

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Register(id*100+j, j)
				if _, ok := r.Get(id*100 + j); ok {
					reads.Add(1)
				}
				_ = r.Keys()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2000, r.Len())
	assert.Equal(t, int64(2000), reads.Load())
}
