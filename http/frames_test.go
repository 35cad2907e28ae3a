package http

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/indigo-web/webcore/http/cookie"
	"github.com/indigo-web/webcore/http/mime"
	"github.com/indigo-web/webcore/http/status"
	"github.com/stretchr/testify/require"
)

func TestContentFrame(t *testing.T) {
	t.Run("limited", func(t *testing.T) {
		var c ContentFrame
		c.Limited, c.Length = true, 10
		require.False(t, c.IsFinalized())
		c.Advance(4)
		require.EqualValues(t, 6, c.Remaining())
		c.Advance(6)
		require.True(t, c.IsFinalized())
	})

	t.Run("unlimited", func(t *testing.T) {
		var c ContentFrame
		c.Append([]byte("hello"))
		require.False(t, c.IsFinalized())
		require.EqualValues(t, -1, c.Remaining())
		c.Finalize()
		require.True(t, c.IsFinalized())
		c.Reset()
		require.False(t, c.IsFinalized())
		require.Empty(t, c.Data)
	})
}

func TestResource(t *testing.T) {
	t.Run("in memory", func(t *testing.T) {
		res := Resource{Data: []byte("payload")}
		require.True(t, res.IsInMemory())
		r, err := res.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, "payload", string(data))
		require.NoError(t, res.Remove())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "part")
		require.NoError(t, os.WriteFile(path, []byte("on disk"), 0o600))
		res := Resource{Path: path}
		require.False(t, res.IsInMemory())
		r, err := res.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, r.Close())
		require.NoError(t, err)
		require.Equal(t, "on disk", string(data))
		require.NoError(t, res.Remove())
		_, err = os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})
}

func TestRequestReset(t *testing.T) {
	request := NewRequest()
	request.URI = "/hello"
	request.Headers.Add("Host", "x")
	request.Cookies.Add("a", "b")
	request.Captures = append(request.Captures, "capture")
	request.Content.Set([]byte("body"))
	request.Reset()

	require.Empty(t, request.URI)
	require.True(t, request.Headers.Empty())
	require.True(t, request.Cookies.Empty())
	require.Empty(t, request.Captures)
	require.Empty(t, request.Content.Data)
}

func TestResponse(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		response, err := NewResponse().TryJSON(map[string]int{"a": 1})
		require.NoError(t, err)
		require.Equal(t, mime.JSON, response.ContentType)
		require.JSONEq(t, `{"a":1}`, string(response.Content.Data))
	})

	t.Run("fail", func(t *testing.T) {
		response := NewResponse().Fail(status.ErrNotFound)
		require.True(t, response.Error)
		require.Equal(t, status.NotFound, response.Status)
		response = NewResponse().Fail(errors.New("oops"))
		require.Equal(t, status.InternalServerError, response.Status)
	})

	t.Run("reset", func(t *testing.T) {
		response := NewResponse().
			Code(status.Created).
			Header("X-Hello", "world").
			Header("Content-Type", mime.Plain).
			Cookie(cookie.New("a", "b")).
			String("hello")
		require.Equal(t, mime.Plain, response.ContentType)
		require.Equal(t, "world", response.Headers.Value("x-hello"))
		response.Reset()
		require.Zero(t, response.Status)
		require.True(t, response.Headers.Empty())
		require.Empty(t, response.Cookies)
		require.Empty(t, response.Content.Data)
	})
}
