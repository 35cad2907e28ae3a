package address

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("only port", func(t *testing.T) {
		require.Equal(t, "0.0.0.0:8080", Normalize(":8080"))
	})

	t.Run("host and port", func(t *testing.T) {
		require.Equal(t, "localhost:8080", Normalize("localhost:8080"))
		require.Equal(t, "[::1]:443", Normalize("[::1]:443"))
	})

	t.Run("no port", func(t *testing.T) {
		require.Equal(t, "localhost", Normalize("localhost"))
	})
}

func TestIsLocal(t *testing.T) {
	for _, addr := range []string{"localhost:80", "LOCALHOST", "127.0.0.1:8080", "[::1]:443", ":8080", "0.0.0.0:80"} {
		require.True(t, IsLocal(addr), addr)
	}

	for _, addr := range []string{"example.com:443", "10.0.0.1:80", "example.com"} {
		require.False(t, IsLocal(addr), addr)
	}
}
