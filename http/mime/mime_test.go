package mime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByExtension(t *testing.T) {
	require.Equal(t, HTML, ByExtension("/var/www/index.HTML"))
	require.Equal(t, JS, ByExtension("app.mjs"))
	require.Equal(t, OctetStream, ByExtension("Makefile"))
	require.Equal(t, OctetStream, ByExtension("data.unknownext"))
}

func TestComplies(t *testing.T) {
	require.True(t, Complies(JSON, "application/json; charset=utf8"))
	require.True(t, Complies(JSON, ""))
	require.False(t, Complies(JSON, HTML))
	require.True(t, Textual("text/csv"))
	require.False(t, Textual(PNG))
}
