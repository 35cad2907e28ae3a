package server

import (
	"bytes"
	"encoding/base64"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/indigo-web/webcore/config"
	"github.com/indigo-web/webcore/router"
	"github.com/indigo-web/webcore/session"
	"github.com/indigo-web/webcore/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const handshake = "GET /ws HTTP/1.1\r\n" +
	"Host: localhost\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: keep-alive, Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n\r\n"

func clientFrame(op websocket.Opcode, payload string) string {
	mask := [4]byte{0x12, 0x34, 0x56, 0x78}
	masked := []byte(payload)
	websocket.MaskBytes(mask, 0, masked)

	return string(append(websocket.AppendHeader(nil, op, len(masked), &mask), masked...))
}

func TestUpgrade(t *testing.T) {
	var lifetime []bool
	setup := func(allow bool) func(r *router.MapRouter) {
		return func(r *router.MapRouter) {
			route := r.Site(router.Wildcard).Route("/ws").Get(func(x router.Exchange) error {
				return x.Upgrade(func(s *websocket.Session, op websocket.Opcode, payload []byte) error {
					s.Send([]byte("echo: "+string(payload)), op, nil)
					return nil
				}, websocket.LifetimeFunc(func(success bool) {
					lifetime = append(lifetime, success)
				}))
			})

			if allow {
				route.AllowWebSocket(0)
			}
		}
	}

	t.Run("session", func(t *testing.T) {
		lifetime = nil
		srv := newTestServer(setup(true))
		client := serve(srv,
			handshake,
			clientFrame(websocket.Text, "hello"),
			clientFrame(websocket.Close, string(websocket.ClosePayload(websocket.CloseNormal, ""))),
		)

		written := client.Written()
		head, frames, found := strings.Cut(written, "\r\n\r\n")
		require.True(t, found)
		require.True(t, strings.HasPrefix(head, "HTTP/1.1 101 Switching Protocols\r\n"))
		require.Contains(t, head, "Upgrade: websocket\r\n")
		require.Contains(t, head, "Connection: Upgrade\r\n")
		require.Contains(t, head, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")

		codec := websocket.NewCodec(0)
		require.NoError(t, codec.ParseFrame([]byte(frames)))

		frame, ok := codec.GetFrame()
		require.True(t, ok)
		require.Equal(t, websocket.Text, frame.Opcode)
		require.Equal(t, "echo: hello", string(frame.Payload))

		frame, ok = codec.GetFrame()
		require.True(t, ok)
		require.Equal(t, websocket.Close, frame.Opcode)
		code, _ := websocket.ParseClose(frame.Payload)
		require.Equal(t, websocket.CloseNormal, code)

		require.Equal(t, []bool{true}, lifetime)
		require.True(t, client.Closed())
	})

	t.Run("forbidden", func(t *testing.T) {
		srv := newTestServer(setup(false))
		r := singleReply(t, serve(srv, handshake))
		require.Equal(t, 403, r.code)
	})

	t.Run("bad handshake", func(t *testing.T) {
		srv := newTestServer(setup(true))
		request := strings.Replace(handshake, "dGhlIHNhbXBsZSBub25jZQ==", "short", 1)
		r := singleReply(t, serve(srv, request))
		require.Equal(t, 400, r.code)
	})

	t.Run("unsupported version", func(t *testing.T) {
		srv := newTestServer(setup(true))
		request := strings.Replace(handshake, "Version: 13", "Version: 8", 1)
		r := singleReply(t, serve(srv, request))
		require.Equal(t, 426, r.code)
		require.Equal(t, "13", r.headers.Value("sec-websocket-version"))
	})
}

func TestAuthorization(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	srv := newTestServer(func(r *router.MapRouter) {
		site := r.Site(router.Wildcard)
		site.Route("/basic").Protect(router.Auth{
			Realm: "private",
			Basic: map[string]string{"admin": string(hash)},
		}).Get(func(x router.Exchange) error {
			x.Response().String("hello, " + x.Request().User)
			return nil
		})
		site.Route("/bearer").Protect(router.Auth{
			Realm: "api",
			Bearer: func(token string) (string, bool) {
				return "robot", token == "t0ken"
			},
		}).Get(func(x router.Exchange) error {
			x.Response().String(x.Request().User + ":" + x.Request().Token)
			return nil
		})
	})

	basic := func(user, password string) string {
		return "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
	}

	t.Run("basic", func(t *testing.T) {
		r := singleReply(t, serve(srv, get("/basic", basic("admin", "secret"))))
		require.Equal(t, 200, r.code)
		require.Equal(t, "hello, admin", r.body)
	})

	t.Run("basic wrong password", func(t *testing.T) {
		r := singleReply(t, serve(srv, get("/basic", basic("admin", "guess"))))
		require.Equal(t, 401, r.code)
		require.Equal(t, `Basic realm="private", charset="UTF-8"`, r.headers.Value("www-authenticate"))
	})

	t.Run("no credentials", func(t *testing.T) {
		r := singleReply(t, serve(srv, get("/basic")))
		require.Equal(t, 401, r.code)
	})

	t.Run("bearer", func(t *testing.T) {
		r := singleReply(t, serve(srv, get("/bearer", "Authorization: Bearer t0ken")))
		require.Equal(t, 200, r.code)
		require.Equal(t, "robot:t0ken", r.body)

		r = singleReply(t, serve(srv, get("/bearer", "Authorization: Bearer nope")))
		require.Equal(t, 401, r.code)
		require.Equal(t, `Bearer realm="api"`, r.headers.Value("www-authenticate"))
	})
}

func TestSessions(t *testing.T) {
	store := session.NewStore(t.TempDir(), config.Default().Session, slog.New(slog.NewTextHandler(io.Discard, nil)))

	srv := newTestServer(func(r *router.MapRouter) {
		site := r.Site(router.Wildcard)
		site.Sessions = store
		site.Route("/visit").Get(func(x router.Exchange) error {
			sess, err := x.Session()
			if err != nil {
				return err
			}

			visits, _ := sess.Get("visits")
			counter, _ := visits.(string)
			counter += "+"
			sess.Set("visits", counter)
			if err = x.SaveSession(sess); err != nil {
				return err
			}

			x.Response().String(counter)
			return nil
		})
	})

	first := singleReply(t, serve(srv, get("/visit")))
	require.Equal(t, "+", first.body)
	setCookie := first.headers.Value("set-cookie")
	require.True(t, strings.HasPrefix(setCookie, "SESSID="), setCookie)
	require.Contains(t, setCookie, "HttpOnly")
	cookie, _, _ := strings.Cut(setCookie, ";")

	second := singleReply(t, serve(srv, get("/visit", "Cookie: "+cookie)))
	require.Equal(t, "++", second.body)

	fresh := singleReply(t, serve(srv, get("/visit", "Cookie: SESSID=forged")))
	require.Equal(t, "+", fresh.body)
	require.NotEqual(t, setCookie, fresh.headers.Value("set-cookie"))
}

func TestNoSessionStore(t *testing.T) {
	var sessionErr error
	srv := newTestServer(func(r *router.MapRouter) {
		r.Site(router.Wildcard).Route("/").Get(func(x router.Exchange) error {
			_, sessionErr = x.Session()
			return x.Finish()
		})
	})

	serve(srv, get("/"))
	require.ErrorIs(t, sessionErr, ErrNoSessions)
}

func TestCompression(t *testing.T) {
	text := strings.Repeat("compressible text ", 200)

	srv := newTestServer(func(r *router.MapRouter) {
		site := r.Site(router.Wildcard)
		site.Route("/text").Compress("gzip").Get(func(x router.Exchange) error {
			x.Response().String(text)
			return nil
		})
		site.Route("/small").Compress("gzip").Get(func(x router.Exchange) error {
			x.Response().String("tiny")
			return nil
		})
	})

	t.Run("compressed", func(t *testing.T) {
		r := singleReply(t, serve(srv, get("/text", "Accept-Encoding: br;q=0, gzip")))
		require.Equal(t, 200, r.code)
		require.Equal(t, "gzip", r.headers.Value("content-encoding"))
		require.Equal(t, "Accept-Encoding", r.headers.Value("vary"))
		require.False(t, r.headers.Has("content-length"))

		reader, err := gzip.NewReader(bytes.NewReader([]byte(r.body)))
		require.NoError(t, err)
		decompressed, err := io.ReadAll(reader)
		require.NoError(t, err)
		require.Equal(t, text, string(decompressed))
	})

	t.Run("not accepted", func(t *testing.T) {
		r := singleReply(t, serve(srv, get("/text")))
		require.False(t, r.headers.Has("content-encoding"))
		require.Equal(t, text, r.body)
	})

	t.Run("too small", func(t *testing.T) {
		r := singleReply(t, serve(srv, get("/small", "Accept-Encoding: gzip")))
		require.False(t, r.headers.Has("content-encoding"))
		require.Equal(t, "tiny", r.body)
	})

	t.Run("keep-alive after compressed", func(t *testing.T) {
		client := serve(srv, get("/text", "Accept-Encoding: gzip")+get("/small"))
		replies := parseReplies(t, client.Written())
		require.Len(t, replies, 2)
		require.Equal(t, "tiny", replies[1].body)
	})
}

func TestRedirect(t *testing.T) {
	srv := newTestServer(func(r *router.MapRouter) {
		r.Site(router.Wildcard).Route("/old").RedirectTo("/new", 308)
	})

	r := singleReply(t, serve(srv, get("/old")))
	require.Equal(t, 308, r.code)
	require.Equal(t, "/new", r.headers.Value("location"))
}
