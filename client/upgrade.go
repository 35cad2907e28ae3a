package client

import (
	"fmt"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/internal/strutil"
	"github.com/indigo-web/webcore/kv"
	"github.com/indigo-web/webcore/websocket"
)

// Upgrade performs the WebSocket handshake and runs the session over the connection. It
// returns only after the session is closed; frames are sent from the OnOpen hook or from
// the receive handler. The connection can't be used for HTTP afterward.
func (c *Client) Upgrade(fetch *http.FetchFrame, receive websocket.Handler, lifetime websocket.Lifetime) error {
	key := websocket.NewKey()
	if fetch.Headers == nil {
		fetch.Headers = kv.New()
	}

	fetch.Method = method.GET
	fetch.Headers.
		Set("Upgrade", "websocket").
		Set("Connection", "Upgrade").
		Set("Sec-WebSocket-Key", key).
		Set("Sec-WebSocket-Version", websocket.Version)

	response, err := c.Send(fetch)
	if err != nil {
		return err
	}

	headers := response.Headers
	switch {
	case response.Status != status.SwitchingProtocols:
		return fmt.Errorf("%w: unexpected status %d", ErrHandshake, response.Status)
	case !strcomp.EqualFold(strutil.StripWS(headers.Value("upgrade")), "websocket"),
		!strutil.ContainsToken(headers.Value("connection"), "upgrade"):
		return fmt.Errorf("%w: protocol wasn't switched", ErrHandshake)
	case headers.Value("sec-websocket-accept") != websocket.AcceptKey(key):
		return fmt.Errorf("%w: accept key mismatch", ErrHandshake)
	}

	c.keepAlive = false
	if err = c.setDeadline(fetch.Timeout); err != nil {
		return err
	}

	session := websocket.NewSession(c.conn, receive, lifetime, websocket.Options{
		Mask:       true,
		MaxPayload: c.cfg.WebSocket.MaxPayload,
		Logger:     c.log,
	})

	if c.onOpen != nil {
		c.onOpen(session)
	}

	session.Run()
	c.closed = true

	return nil
}
