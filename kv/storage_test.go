package kv

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	getHeaders := func() *Storage {
		return New().
			Add("Foo", "bar").
			Add("Hello", "World").
			Add("Lorem", "ipsum").
			Add("hello", "Pavlo")
	}

	t.Run("most recent value wins", func(t *testing.T) {
		kv := getHeaders()
		require.Equal(t, "Pavlo", kv.Value("HELLO"))
		require.Equal(t, "bar", kv.Value("foo"))
		require.Equal(t, "nope", kv.ValueOr("missing", "nope"))
	})

	t.Run("values keep insertion order", func(t *testing.T) {
		kv := getHeaders()
		require.Equal(t, []string{"World", "Pavlo"}, slices.Collect(kv.Values("hello")))
		require.Empty(t, slices.Collect(kv.Values("missing")))
	})

	t.Run("delete", func(t *testing.T) {
		kv := getHeaders().Delete("HELLO")
		require.Equal(t, 2, kv.Len())
		require.False(t, kv.Has("hello"))
		require.Equal(t, []Pair{{"Foo", "bar"}, {"Lorem", "ipsum"}}, kv.Expose())
	})

	t.Run("set", func(t *testing.T) {
		kv := getHeaders().Set("HELLO", "no more Pavlo")
		require.Equal(t, 3, kv.Len())
		require.Equal(t, []string{"no more Pavlo"}, slices.Collect(kv.Values("hello")))
	})

	t.Run("keys", func(t *testing.T) {
		require.Equal(t, []string{"Foo", "Hello", "Lorem"}, getHeaders().Keys())
	})

	t.Run("clone is independent", func(t *testing.T) {
		kv := getHeaders()
		clone := kv.Clone()
		kv.Clear()
		require.True(t, kv.Empty())
		require.Equal(t, 4, clone.Len())
	})
}
