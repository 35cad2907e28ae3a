package server

import (
	"bytes"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/indigo-web/webcore/config"
	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/codec"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/httpparser"
	"github.com/indigo-web/webcore/kv"
	"github.com/indigo-web/webcore/router"
	"github.com/indigo-web/webcore/transport/dummy"
	"github.com/stretchr/testify/require"
)

func newTestServer(setup func(r *router.MapRouter), tune ...func(cfg *config.Config)) *Server {
	r := router.New()
	setup(r)
	r.Freeze()

	cfg := config.Default()
	for _, f := range tune {
		f(cfg)
	}

	return New(cfg, r, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func serve(srv *Server, pieces ...string) *dummy.Client {
	data := make([][]byte, len(pieces))
	for i, piece := range pieces {
		data[i] = []byte(piece)
	}

	client := dummy.NewMockClient(data...)
	srv.ServeClient(client)

	return client
}

type reply struct {
	code    int
	headers *kv.Storage
	body    string
}

// parseReplies splits the written stream into responses. Bodies are recognized by
// Content-Length or chunked transfer coding only, so it doesn't suit replies to HEAD.
func parseReplies(t *testing.T, raw string) (replies []reply) {
	data := []byte(raw)

	for len(data) > 0 {
		r := reply{headers: kv.New()}
		var key string

		p := httpparser.New()
		p.OnStatusCode = func(value []byte) bool {
			r.code, _ = strconv.Atoi(string(value))
			return true
		}
		p.OnHeaderField = func(value []byte) bool {
			key = string(value)
			return true
		}
		p.OnHeaderValue = func(value []byte) bool {
			r.headers.Add(key, string(value))
			return true
		}

		n := p.ParseResponse(data, 0)
		require.Greater(t, n, 0, "malformed response: %q", data)
		data = data[n:]

		switch {
		case r.headers.Value("transfer-encoding") == "chunked":
			buff := slices.Clone(data)
			length := len(buff)
			rest := p.ParseDecodeChunked(buff, &length)
			require.GreaterOrEqual(t, rest, 0)
			r.body = string(buff[:length])
			data = data[len(data)-rest:]
		case r.headers.Has("content-length"):
			length, err := strconv.Atoi(r.headers.Value("content-length"))
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(data), length)
			r.body = string(data[:length])
			data = data[length:]
		}

		replies = append(replies, r)
	}

	return replies
}

func singleReply(t *testing.T, client *dummy.Client) reply {
	replies := parseReplies(t, client.Written())
	require.Len(t, replies, 1)
	return replies[0]
}

func TestExchange(t *testing.T) {
	srv := newTestServer(func(r *router.MapRouter) {
		site := r.Site(router.Wildcard)
		site.Route("/hello").Get(func(x router.Exchange) error {
			x.Response().String("Hello, world!")
			return x.Finish()
		})
		site.Route("/implicit").Get(func(x router.Exchange) error {
			x.Response().Code(status.Created).String("created")
			return nil
		})
		site.Route("/user/([0-9]+)").Get(func(x router.Exchange) error {
			request := x.Request()
			x.Response().String(request.Captures[0] + ":" + request.Params.Value("name"))
			return nil
		})
	})

	t.Run("simple", func(t *testing.T) {
		client := serve(srv, "GET /hello HTTP/1.1\r\nHost: localhost\r\n\r\n")
		r := singleReply(t, client)
		require.Equal(t, 200, r.code)
		require.Equal(t, "Hello, world!", r.body)
		require.Equal(t, "keep-alive", r.headers.Value("connection"))
		require.Equal(t, "webcore", r.headers.Value("server"))
		require.True(t, r.headers.Has("date"))
		require.True(t, strings.HasPrefix(client.Written(), "HTTP/1.1 200 OK\r\n"))
	})

	t.Run("finished implicitly", func(t *testing.T) {
		r := singleReply(t, serve(srv, "GET /implicit HTTP/1.1\r\nHost: localhost\r\n\r\n"))
		require.Equal(t, 201, r.code)
		require.Equal(t, "created", r.body)
	})

	t.Run("captures and query", func(t *testing.T) {
		r := singleReply(t, serve(srv, "GET /user/42?name=J%C3%B6rg+K HTTP/1.1\r\nHost: localhost\r\n\r\n"))
		require.Equal(t, "42:Jörg K", r.body)
	})

	t.Run("split head", func(t *testing.T) {
		request := "GET /hello HTTP/1.1\r\nHost: localhost\r\nAccept: */*\r\n\r\n"
		for step := 1; step < len(request); step += 7 {
			var pieces []string
			for i := 0; i < len(request); i += step {
				pieces = append(pieces, request[i:min(i+step, len(request))])
			}

			r := singleReply(t, serve(srv, pieces...))
			require.Equal(t, "Hello, world!", r.body, "step %d", step)
		}
	})

	t.Run("HTTP/1.0", func(t *testing.T) {
		client := serve(srv, "GET /hello HTTP/1.0\r\n\r\n")
		r := singleReply(t, client)
		require.Equal(t, 200, r.code)
		require.Equal(t, "close", r.headers.Value("connection"))
		require.True(t, strings.HasPrefix(client.Written(), "HTTP/1.0 200 OK\r\n"))
	})
}

func TestKeepAlive(t *testing.T) {
	var seen []string
	srv := newTestServer(func(r *router.MapRouter) {
		r.Site(router.Wildcard).Route("/").Get(func(x router.Exchange) error {
			request := x.Request()
			seen = append(seen, request.Headers.Value("X-First")+"|"+
				strconv.Itoa(request.Cookies.Len())+"|"+request.Params.Value("q"))
			if request.Cookies.Len() > 0 {
				x.Response().Header("X-Cookie", request.Cookies.Value("a"))
			}

			return x.Finish()
		})
	}, func(cfg *config.Config) {
		cfg.Server.MaxRequests = 3
	})

	t.Run("clean frames", func(t *testing.T) {
		seen = nil
		client := serve(srv,
			"GET /?q=1 HTTP/1.1\r\nHost: a\r\nX-First: yes\r\nCookie: a=b; c=d\r\n\r\n"+
				"GET / HTTP/1.1\r\nHost: a\r\n\r\n",
		)

		require.Equal(t, []string{"yes|2|1", "|0|"}, seen)
		replies := parseReplies(t, client.Written())
		require.Len(t, replies, 2)
		require.Equal(t, "b", replies[0].headers.Value("X-Cookie"))
		require.False(t, replies[1].headers.Has("X-Cookie"))
	})

	t.Run("connection close", func(t *testing.T) {
		seen = nil
		client := serve(srv,
			"GET / HTTP/1.1\r\nHost: a\r\nConnection: close\r\n\r\n"+
				"GET / HTTP/1.1\r\nHost: a\r\n\r\n",
		)

		require.Len(t, seen, 1)
		require.Equal(t, "close", singleReply(t, client).headers.Value("connection"))
		require.True(t, client.Closed())
	})

	t.Run("max requests", func(t *testing.T) {
		seen = nil
		request := "GET / HTTP/1.1\r\nHost: a\r\n\r\n"
		client := serve(srv, strings.Repeat(request, 5))

		require.Len(t, seen, 3)
		replies := parseReplies(t, client.Written())
		require.Len(t, replies, 3)
		require.Equal(t, "close", replies[2].headers.Value("connection"))
	})

	t.Run("unread body is drained", func(t *testing.T) {
		seen = nil
		client := serve(srv,
			"GET / HTTP/1.1\r\nHost: a\r\nContent-Length: 5\r\n\r\nhello"+
				"GET / HTTP/1.1\r\nHost: a\r\n\r\n",
		)

		require.Len(t, seen, 2)
		require.Len(t, parseReplies(t, client.Written()), 2)
	})
}

func TestHeadErrors(t *testing.T) {
	srv := newTestServer(func(r *router.MapRouter) {
		r.Site("localhost").Route("/").Get(func(x router.Exchange) error {
			return x.Finish()
		})
	}, func(cfg *config.Config) {
		cfg.URI.MaxLength = 64
		cfg.Headers.MaxNumber = 4
	})

	for _, tc := range []struct {
		name    string
		request string
		code    int
	}{
		{"malformed header", "GET / HTTP/1.1\r\nHost localhost\r\n\r\n", 400},
		{"unknown method", "BREW / HTTP/1.1\r\nHost: localhost\r\n\r\n", 501},
		{"unsupported version", "GET / HTTP/2.0\r\nHost: localhost\r\n\r\n", 505},
		{"missing host", "GET / HTTP/1.1\r\n\r\n", 400},
		{"misdirected", "GET / HTTP/1.1\r\nHost: example.org\r\n\r\n", 421},
		{"uri too long", "GET /" + strings.Repeat("a", 100) + " HTTP/1.1\r\nHost: localhost\r\n\r\n", 414},
		{"too many headers", "GET / HTTP/1.1\r\nHost: localhost\r\n" + strings.Repeat("A: b\r\n", 5) + "\r\n", 431},
		{"bad urlencoding", "GET /%zz HTTP/1.1\r\nHost: localhost\r\n\r\n", 400},
		{"unknown transfer encoding", "POST / HTTP/1.1\r\nHost: localhost\r\nTransfer-Encoding: gzip\r\n\r\n", 501},
		{"both framings", "POST / HTTP/1.1\r\nHost: localhost\r\nTransfer-Encoding: chunked\r\nContent-Length: 3\r\n\r\n", 400},
		{"bad content length", "POST / HTTP/1.1\r\nHost: localhost\r\nContent-Length: -1\r\n\r\n", 400},
	} {
		t.Run(tc.name, func(t *testing.T) {
			client := serve(srv, tc.request)
			r := singleReply(t, client)
			require.Equal(t, tc.code, r.code)
			require.Equal(t, "close", r.headers.Value("connection"))
			require.NotEmpty(t, r.headers.Value("x-error"))
			require.True(t, client.Closed())
		})
	}
}

func TestBody(t *testing.T) {
	var consumeErr error
	var sentinels int

	echo := func(x router.Exchange) error {
		err := x.Consume(func(_ *http.ContentFrame, chunk []byte) error {
			if chunk == nil {
				sentinels++
			}

			return nil
		}, false)
		if err != nil {
			return err
		}

		consumeErr = x.Consume(nil, false)
		content := x.Request().Content
		if content.Exceeds {
			return status.ErrBodyTooLarge
		}

		x.Response().Bytes(content.Data)
		return x.Finish()
	}

	srv := newTestServer(func(r *router.MapRouter) {
		site := r.Site(router.Wildcard)
		site.Route("/echo").Post(echo)
		limited := site.Route("/limited").Post(echo)
		limited.CacheLimit = 4
	})

	t.Run("content length", func(t *testing.T) {
		sentinels = 0
		r := singleReply(t, serve(srv,
			"POST /echo HTTP/1.1\r\nHost: a\r\nContent-Length: 11\r\n\r\nhello", " world",
		))

		require.Equal(t, 200, r.code)
		require.Equal(t, "hello world", r.body)
		require.Equal(t, 1, sentinels)
		require.ErrorIs(t, consumeErr, ErrBodyConsumed)
	})

	t.Run("chunked", func(t *testing.T) {
		client := serve(srv,
			"POST /echo HTTP/1.1\r\nHost: a\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhel",
			"lo\r\n6\r\n world\r\n0\r\n\r\nGET /echo HTTP/1.1\r\nHost: a\r\n\r\n",
		)

		replies := parseReplies(t, client.Written())
		require.Len(t, replies, 2)
		require.Equal(t, "hello world", replies[0].body)
		require.Equal(t, 405, replies[1].code, "leftover must start the next request")
		require.Equal(t, "POST, OPTIONS", replies[1].headers.Value("allow"))
	})

	t.Run("malformed chunked", func(t *testing.T) {
		client := serve(srv, "POST /echo HTTP/1.1\r\nHost: a\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n")
		require.Equal(t, 400, singleReply(t, client).code)
		require.True(t, client.Closed())
	})

	t.Run("exceeds", func(t *testing.T) {
		client := serve(srv, "POST /limited HTTP/1.1\r\nHost: a\r\nContent-Length: 10\r\n\r\n0123456789")
		r := singleReply(t, client)
		require.Equal(t, 413, r.code)
		require.Equal(t, "close", r.headers.Value("connection"))
	})

	t.Run("exceeds while chunked", func(t *testing.T) {
		r := singleReply(t, serve(srv,
			"POST /limited HTTP/1.1\r\nHost: a\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n3\r\ndef\r\n0\r\n\r\n",
		))
		require.Equal(t, 413, r.code)
	})

	t.Run("content encoding", func(t *testing.T) {
		inst := codec.NewGZIP().New()
		var compressed bytes.Buffer
		inst.ResetCompressor(&compressed)
		_, err := inst.Write([]byte("compressed payload"))
		require.NoError(t, err)
		require.NoError(t, inst.Close())

		r := singleReply(t, serve(srv,
			"POST /echo HTTP/1.1\r\nHost: a\r\nContent-Encoding: gzip\r\nContent-Length: "+
				strconv.Itoa(compressed.Len())+"\r\n\r\n"+compressed.String(),
		))
		require.Equal(t, "compressed payload", r.body)
	})

	t.Run("unsupported content encoding", func(t *testing.T) {
		r := singleReply(t, serve(srv,
			"POST /echo HTTP/1.1\r\nHost: a\r\nContent-Encoding: lzma\r\nContent-Length: 1\r\n\r\nx",
		))
		require.Equal(t, 415, r.code)
	})
}

func TestStore(t *testing.T) {
	var body bytes.Buffer
	w := httpparser.NewMultipartWriter(&body, "test-boundary")
	require.NoError(t, w.WritePart(&http.Resource{Name: "field"}, strings.NewReader("value")))
	require.NoError(t, w.WritePart(
		&http.Resource{Name: "file", Filename: "a.txt", Type: "text/plain"},
		strings.NewReader("file content"),
	))
	require.NoError(t, w.Close())

	request := "POST /upload HTTP/1.1\r\nHost: a\r\nContent-Type: " + w.ContentType() +
		"\r\nContent-Length: " + strconv.Itoa(body.Len()) + "\r\n\r\n" + body.String()

	var parts, paths []string
	var sentinels int

	upload := func(x router.Exchange) error {
		return x.Store(func(res *http.Resource) error {
			if res == nil {
				sentinels++
				return nil
			}

			r, err := res.Open()
			if err != nil {
				return err
			}

			data, err := io.ReadAll(r)
			if err = r.Close(); err != nil {
				return err
			}

			parts = append(parts, res.Name+"|"+res.Filename+"|"+res.Type+"|"+string(data)+"|"+
				strconv.FormatBool(res.IsInMemory()))
			paths = append(paths, res.Path)
			return nil
		}, false)
	}

	t.Run("memory", func(t *testing.T) {
		parts, paths, sentinels = nil, nil, 0
		srv := newTestServer(func(r *router.MapRouter) {
			r.Site(router.Wildcard).Route("/upload").Post(upload)
		})

		r := singleReply(t, serve(srv, request))
		require.Equal(t, 200, r.code)
		require.Equal(t, []string{"field|||value|true", "file|a.txt|text/plain|file content|true"}, parts)
		require.Equal(t, 1, sentinels)
	})

	t.Run("files", func(t *testing.T) {
		parts, paths, sentinels = nil, nil, 0
		root := t.TempDir()
		srv := newTestServer(func(r *router.MapRouter) {
			site := r.Site(router.Wildcard)
			site.ResourceRoot = root
			site.Route("/upload").Post(upload)
		})

		var pieces []string
		for i := 0; i < len(request); i += 13 {
			pieces = append(pieces, request[i:min(i+13, len(request))])
		}

		r := singleReply(t, serve(srv, pieces...))
		require.Equal(t, 200, r.code)
		require.Equal(t, []string{"field|||value|false", "file|a.txt|text/plain|file content|false"}, parts)
		require.Len(t, paths, 2)
		for _, path := range paths {
			require.True(t, strings.HasPrefix(path, root))
			require.NoFileExists(t, path, "temporary files are removed after the exchange")
		}
	})

	t.Run("empty header value", func(t *testing.T) {
		parts, paths, sentinels = nil, nil, 0
		srv := newTestServer(func(r *router.MapRouter) {
			r.Site(router.Wildcard).Route("/upload").Post(upload)
		})

		body := "preamble\r\n--xyz\r\nX-Empty:\r\nContent-Disposition: form-data; name=\"field\"\r\n" +
			"\r\nvalue\r\n--xyz--\r\n"
		request := "POST /upload HTTP/1.1\r\nHost: a\r\nContent-Type: multipart/form-data; boundary=xyz" +
			"\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body

		var pieces []string
		for i := 0; i < len(request); i += 5 {
			pieces = append(pieces, request[i:min(i+5, len(request))])
		}

		r := singleReply(t, serve(srv, pieces...))
		require.Equal(t, 200, r.code)
		require.Equal(t, []string{"field|||value|true"}, parts)
		require.Equal(t, 1, sentinels)
	})

	t.Run("not multipart", func(t *testing.T) {
		srv := newTestServer(func(r *router.MapRouter) {
			r.Site(router.Wildcard).Route("/upload").Post(upload)
		})

		r := singleReply(t, serve(srv, "POST /upload HTTP/1.1\r\nHost: a\r\nContent-Length: 2\r\n\r\nhi"))
		require.Equal(t, 415, r.code)
	})

	t.Run("malformed", func(t *testing.T) {
		srv := newTestServer(func(r *router.MapRouter) {
			r.Site(router.Wildcard).Route("/upload").Post(upload)
		})

		broken := "garbage"
		r := singleReply(t, serve(srv, "POST /upload HTTP/1.1\r\nHost: a\r\nContent-Type: "+w.ContentType()+
			"\r\nContent-Length: "+strconv.Itoa(len(broken))+"\r\n\r\n"+broken))
		require.Equal(t, 400, r.code)
	})
}

func TestConnState(t *testing.T) {
	srv := newTestServer(func(*router.MapRouter) {})
	c := NewConnection(srv, dummy.NewNopClient(), nil)

	require.Equal(t, HeaderRead, c.State())
	require.NoError(t, c.SetState(Routed))
	require.NoError(t, c.SetState(Body))
	require.ErrorIs(t, c.SetState(Authorized), ErrStateRegression)
	require.NoError(t, c.SetState(Reset))
	require.NoError(t, c.SetState(HeaderRead), "keep-alive loop")
	require.NoError(t, c.SetState(Closed))
	require.ErrorIs(t, c.SetState(HeaderRead), ErrStateRegression)
	require.Equal(t, "closed", c.State().String())
}
