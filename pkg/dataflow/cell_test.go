package dataflow

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_States(t *testing.T) {
	c := NewCell[any]()
	v, state := c.Get()
	assert.Nil(t, v)
	assert.Equal(t, CellUnset, state)
	assert.Zero(t, c.Counter())

	assert.Equal(t, uint64(1), c.Set("x"))
	v, ok := c.Value()
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	assert.Equal(t, uint64(2), c.SetNull())
	assert.Equal(t, CellNull, c.State())
	_, ok = c.Value()
	assert.False(t, ok)

	assert.Equal(t, uint64(3), c.Clear())
	assert.Equal(t, CellUnset, c.State())
}

func TestCell_EqualWriteStillCounts(t *testing.T) {
	c := NewCellOf("same")
	assert.Equal(t, uint64(1), c.Counter())
	c.Set("same")
	c.Set("same")
	assert.Equal(t, uint64(3), c.Counter())
}

func TestCell_ClearUnsetDoesNotCount(t *testing.T) {
	c := NewCell[int]()
	assert.Zero(t, c.Clear())
	assert.Zero(t, c.Counter())
}

func TestCell_CopyFrom(t *testing.T) {
	src := NewCell[any]()
	dst := NewCellOf[any](1)

	dst.CopyFrom(src)
	assert.Equal(t, CellUnset, dst.State(), "copying unset clears")

	src.SetNull()
	dst.CopyFrom(src)
	assert.Equal(t, CellNull, dst.State())

	src.Set("v")
	dst.CopyFrom(src)
	v, state, counter := dst.Snapshot()
	assert.Equal(t, "v", v)
	assert.Equal(t, CellPresent, state)
	assert.Equal(t, uint64(4), counter)
}

func TestCell_MarshalJSON(t *testing.T) {
	c := NewCell[any]()
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `null`, string(b))

	c.Set(map[string]any{"a": 1})
	b, err = json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))
}

func TestCell_ConcurrentWrites(t *testing.T) {
	c := NewCell[int]()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Set(i)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(50), c.Counter())
}
