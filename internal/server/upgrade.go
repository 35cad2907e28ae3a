package server

import (
	"errors"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/webcore/http/cookie"
	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/proto"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/internal/strutil"
	"github.com/indigo-web/webcore/internal/timer"
	"github.com/indigo-web/webcore/session"
	"github.com/indigo-web/webcore/websocket"
)

// Upgrade completes the WebSocket handshake and runs the session until it's over. The
// connection isn't reused afterwards.
func (c *Connection) Upgrade(handler websocket.Handler, lifetime websocket.Lifetime) error {
	if c.state >= Compose {
		return ErrResponseSent
	}

	if !c.route.WebSocket {
		return status.ErrWebSocketForbidden
	}

	request := c.request
	headers := request.Headers
	key := headers.Value("sec-websocket-key")

	switch {
	case request.Method != method.GET, request.Version != proto.HTTP11,
		!strutil.ContainsToken(headers.Value("connection"), "upgrade"),
		!strcomp.EqualFold(strutil.StripWS(headers.Value("upgrade")), "websocket"),
		!websocket.ValidKey(key):
		return status.ErrBadHandshake
	case headers.Value("sec-websocket-version") != websocket.Version:
		c.response.Header("Sec-WebSocket-Version", websocket.Version)
		return status.ErrUpgradeRequired
	}

	_ = c.SetState(Compose)
	c.response.Status = status.SwitchingProtocols
	c.upgraded = true
	c.keepAlive = false

	buff := append(c.buff[:0], proto.HTTP11.String()...)
	buff = append(buff, "101 Switching Protocols\r\n"...)
	buff = appendHeader(buff, "Upgrade", "websocket")
	buff = appendHeader(buff, "Connection", "Upgrade")
	buff = appendHeader(buff, "Sec-WebSocket-Accept", websocket.AcceptKey(key))
	buff = append(buff, crlf...)
	c.buff = buff

	err := c.write(buff)
	_ = c.SetState(Finished)
	c.record()
	if err != nil {
		return err
	}

	timeout := c.route.WebSocketTimeout
	if timeout <= 0 {
		timeout = c.srv.cfg.WebSocket.Timeout
	}

	c.client.SetTimeout(timeout)
	c.srv.metrics.SessionOpened()
	defer c.srv.metrics.SessionClosed()

	websocket.NewSession(c.client, handler, lifetime, websocket.Options{
		MaxPayload: c.srv.cfg.WebSocket.MaxPayload,
		Logger:     c.log,
	}).Run()

	return nil
}

// Session loads the visitor's session by the cookie, or creates a new one when there's
// none or it's no longer valid.
func (c *Connection) Session() (*session.Session, error) {
	store := c.route.Site.Sessions
	if store == nil {
		return nil, ErrNoSessions
	}

	id := c.request.Cookies.Value(store.CookieName())
	if len(id) == 0 {
		return store.Create(), nil
	}

	sess, err := store.Load(id)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrBadID), errors.Is(err, session.ErrCorrupt):
		return store.Create(), nil
	default:
		return nil, err
	}
}

// SaveSession writes the session down and sets its cookie.
func (c *Connection) SaveSession(sess *session.Session) error {
	store := c.route.Site.Sessions
	if store == nil {
		return ErrNoSessions
	}

	if err := store.Save(sess); err != nil {
		return err
	}

	c.response.Cookie(cookie.Build(store.CookieName(), sess.ID).
		Path("/").
		HttpOnly(true).
		SameSite(cookie.SameSiteLax).
		Expires(sess.Expires.UTC().Format(timer.DateLayout)).
		Cookie(),
	)

	return nil
}
