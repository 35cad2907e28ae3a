// Package client implements the HTTP/1.1 client side: it sends FetchFrames over a single
// connection, receives responses and may switch the connection to a WebSocket session.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/webcore/config"
	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/codec"
	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/proto"
	"github.com/indigo-web/webcore/httpparser"
	"github.com/indigo-web/webcore/internal/timer"
	"github.com/indigo-web/webcore/transport"
	"github.com/indigo-web/webcore/websocket"
)

var (
	// ErrValueTooLarge is returned when the response head or body exceeds its limit.
	ErrValueTooLarge = errors.New("value is too large")
	// ErrProtocol means the peer violated the framing of the message.
	ErrProtocol = errors.New("protocol error")
	// ErrBadMessage means the message is syntactically broken or truncated.
	ErrBadMessage = errors.New("bad message")
	// ErrHandshake means the peer refused or botched the WebSocket handshake.
	ErrHandshake = errors.New("websocket handshake failed")
	// ErrTimedOut means the fetch didn't complete within its timeout.
	ErrTimedOut = errors.New("fetch timed out")
	// ErrClosed is returned when the peer closed the connection after the last response.
	ErrClosed = errors.New("connection is closed")
)

type Options struct {
	Logger *slog.Logger
	// Codecs decode compressed responses. Defaults to codec.Default().
	Codecs []codec.Codec
	// OnOpen is called with the WebSocket session once the upgrade succeeds, before any
	// frame is received. It's the place to start sending from.
	OnOpen func(s *websocket.Session)
	Config *config.Config
}

// Client is a single HTTP/1.1 connection. It isn't safe for concurrent use.
type Client struct {
	conn     transport.Client
	host     string
	cfg      *config.Config
	log      *slog.Logger
	codecs   *codec.Cache
	onOpen   func(s *websocket.Session)
	parser   *httpparser.Parser
	chunked  *chunkedbody.Parser
	response *http.ResponseFrame

	head     []byte
	buff     []byte
	fileBuff []byte

	method      method.Method
	version     proto.Proto
	headerKey   string
	headerCount int
	headErr     error
	body        bodyFraming

	// pending is set while the body of the last response wasn't read out.
	pending   bool
	used      bool
	keepAlive bool
	closed    bool
}

// Dial connects to the host of the URL. Schemes http and ws dial plain TCP, https and wss
// dial TLS, verifying the peer unless the fetch says otherwise. The fetch may be nil.
func Dial(ctx context.Context, rawURL string, fetch *http.FetchFrame, opts ...Options) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadMessage, err)
	}

	var secure bool
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
	case "https", "wss":
		secure = true
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrProtocol, u.Scheme)
	}

	addr := u.Host
	if len(u.Port()) == 0 {
		port := "80"
		if secure {
			port = "443"
		}

		addr = net.JoinHostPort(u.Hostname(), port)
	}

	if fetch != nil && fetch.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fetch.Timeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, wrapNetErr(err)
	}

	if secure {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         u.Hostname(),
			InsecureSkipVerify: fetch != nil && !fetch.VerifyPeer,
			MinVersion:         tls.VersionTLS12,
			NextProtos:         []string{"http/1.1"},
		})

		if err = tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, wrapNetErr(err)
		}

		conn = tlsConn
	}

	return New(conn, u.Host, opts...), nil
}

// New wraps an established connection. The host is sent in the Host header.
func New(conn net.Conn, host string, opts ...Options) *Client {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	if o.Codecs == nil {
		o.Codecs = codec.Default()
	}

	if o.Config == nil {
		o.Config = config.Default()
	}

	c := &Client{
		conn:     transport.NewClient(conn, 0, make([]byte, o.Config.NET.ReadBufferSize)),
		host:     host,
		cfg:      o.Config,
		log:      o.Logger.With("remote", conn.RemoteAddr()),
		codecs:   codec.NewCache(o.Codecs),
		onOpen:   o.OnOpen,
		parser:   httpparser.New(),
		response: http.NewResponse(),
	}
	c.bindHeadCallbacks()

	return c
}

// Fetch is a one-shot request: it dials, sends the fetch, reads the whole body and hangs up.
func Fetch(ctx context.Context, fetch *http.FetchFrame, opts ...Options) (*http.ResponseFrame, error) {
	c, err := Dial(ctx, fetch.URL, fetch, opts...)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := c.Close(); err != nil {
			c.log.Debug("closing connection", "error", err)
		}
	}()

	response, err := c.Send(fetch)
	if err != nil {
		return nil, err
	}

	if err = c.Consume(fetch.MaxSize); err != nil {
		return nil, err
	}

	return response, nil
}

// Response returns the last received response.
func (c *Client) Response() *http.ResponseFrame {
	return c.response
}

func (c *Client) Close() error {
	c.closed = true
	return c.conn.Close()
}

// setDeadline bounds the whole exchange. Zero timeout lifts the bound.
func (c *Client) setDeadline(timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = timer.Now().Add(timeout)
	}

	return c.conn.Conn().SetDeadline(deadline)
}

// wrapNetErr translates deadline errors into ErrTimedOut.
func wrapNetErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || transport.Classify(0, err) == transport.Timeout {
		return fmt.Errorf("%w: %s", ErrTimedOut, err)
	}

	return err
}
