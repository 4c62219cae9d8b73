package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"idxengine/config"
	"idxengine/pkg/codec"
)

func TestCache_SetThenGet(t *testing.T) {
	c, err := NewCache(config.NewQueryConfig())
	require.NoError(t, err)
	defer c.Close()

	result := IndexQueryResult{Entries: 1, Values: []CachedValue{{Pointer: codec.RecordPointer{Key: "a"}}}}
	c.Set("k1", result)

	got, ok := c.Get("k1")
	require.True(t, ok)
	require.Equal(t, result, got)
}

func TestCache_Clear_RemovesEverything(t *testing.T) {
	c, err := NewCache(config.NewQueryConfig())
	require.NoError(t, err)
	defer c.Close()

	c.Set("k1", IndexQueryResult{Entries: 1})
	c.Clear()

	_, ok := c.Get("k1")
	require.False(t, ok)
}

func TestCache_Miss_ReturnsFalse(t *testing.T) {
	c, err := NewCache(config.NewQueryConfig())
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("missing")
	require.False(t, ok)
}
