package cookie

import (
	"testing"

	"github.com/indigo-web/webcore/kv"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("single pair", func(t *testing.T) {
		jar := kv.New()
		Parse(jar, "hello=world")
		require.Equal(t, []kv.Pair{{"hello", "world"}}, jar.Expose())
	})

	t.Run("multiple pairs and noise", func(t *testing.T) {
		jar := kv.New()
		Parse(jar, `session=abc; ; flag; name="quoted value";session=def`)
		require.Equal(t, "def", jar.Value("session"))
		require.Equal(t, "quoted value", jar.Value("name"))
		require.False(t, jar.Has("flag"))
		require.Equal(t, 3, jar.Len())
	})
}

func TestAppend(t *testing.T) {
	c := Build("session", "abc").
		Path("/").
		Domain("example.com").
		Expires("Wed, 21 Oct 2015 07:28:00 GMT").
		SameSite(SameSiteStrict).
		Secure(true).
		HttpOnly(true).
		Cookie()

	require.Equal(t,
		"session=abc; Path=/; Domain=example.com; Expires=Wed, 21 Oct 2015 07:28:00 GMT; "+
			"SameSite=Strict; Secure; HttpOnly",
		c.String(),
	)
	require.Equal(t, "a=b", New("a", "b").String())
}
