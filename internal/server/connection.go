package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/codec"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/httpparser"
	"github.com/indigo-web/webcore/internal/timer"
	"github.com/indigo-web/webcore/router"
	"github.com/indigo-web/webcore/transport"
)

// ConnState is a step of a single exchange. States only move forward, except for the
// keep-alive loop from Reset back to HeaderRead.
type ConnState uint8

const (
	HeaderRead ConnState = iota
	Routed
	Authorized
	Body
	Compose
	Finished
	Reset
	Closed
)

var stateNames = [...]string{
	HeaderRead: "header-read",
	Routed:     "routed",
	Authorized: "authorized",
	Body:       "body",
	Compose:    "compose",
	Finished:   "finished",
	Reset:      "reset",
	Closed:     "closed",
}

func (c ConnState) String() string {
	if int(c) >= len(stateNames) {
		return fmt.Sprintf("ConnState(%d)", uint8(c))
	}

	return stateNames[c]
}

var (
	ErrStateRegression = errors.New("connection state can't move backwards")
	ErrBodyConsumed    = errors.New("request body was already consumed")
	ErrResponseSent    = errors.New("response was already sent")
	ErrNoSessions      = errors.New("site has no session store")
)

var _ router.Exchange = new(Connection)

// Connection drives exchanges over a single client. It's owned by one goroutine and
// therefore never synchronized.
type Connection struct {
	srv      *Server
	client   transport.Client
	progress *transport.Progress
	log      *slog.Logger
	codecs   *codec.Cache

	parser   *httpparser.Parser
	parts    *httpparser.Parser
	request  *http.RequestFrame
	response *http.ResponseFrame
	route    *router.RouteEntry

	state     ConnState
	requests  int
	keepAlive bool
	upgraded  bool
	began     time.Time

	head       []byte
	buff       []byte
	// fileBuff is used to stream files when sendfile isn't available.
	fileBuff   []byte
	rangeHeads []string
	chunks     chunkedWriter

	headErr     error
	headerKey   string
	headerCount int

	body bodyState
}

func NewConnection(srv *Server, client transport.Client, progress *transport.Progress) *Connection {
	request := http.NewRequest()
	request.Remote = client.Remote()

	c := &Connection{
		srv:      srv,
		client:   client,
		progress: progress,
		log:      srv.log.With("remote", client.Remote()),
		codecs:   codec.NewCache(srv.codecs),
		parser:   httpparser.New(),
		parts:    httpparser.New(),
		request:  request,
		response: http.NewResponse(),
		state:    HeaderRead,
	}
	c.bindHeadCallbacks()
	c.bindPartCallbacks()

	return c
}

// SetState moves the connection into the next state. Moving backwards is rejected, except
// from Reset to HeaderRead. Every state can be left for Closed.
func (c *Connection) SetState(next ConnState) error {
	switch {
	case c.state == Closed && next != Closed:
		return fmt.Errorf("%w: %s -> %s", ErrStateRegression, c.state, next)
	case next >= c.state, c.state == Reset && next == HeaderRead:
		c.state = next
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrStateRegression, c.state, next)
	}
}

func (c *Connection) State() ConnState {
	return c.state
}

func (c *Connection) Request() *http.RequestFrame {
	return c.request
}

func (c *Connection) Response() *http.ResponseFrame {
	return c.response
}

func (c *Connection) Route() *router.RouteEntry {
	return c.route
}

func (c *Connection) Logger() *slog.Logger {
	return c.log
}

// Run serves exchanges until the connection is closed either by a peer, an error or the
// keep-alive policy.
func (c *Connection) Run() {
	defer c.Break()

	for c.serve() {
	}
}

// Break tears the connection down. It's safe to call multiple times.
func (c *Connection) Break() {
	if c.state == Closed {
		return
	}

	c.removeResources()
	_ = c.SetState(Closed)
	if err := c.client.Close(); err != nil {
		c.log.Debug("closing connection", "error", err)
	}
}

// serve runs a single exchange and tells whether the connection may be reused.
func (c *Connection) serve() bool {
	err := c.ReadHead()
	c.began = timer.Now()
	if err != nil {
		var httpErr status.HTTPError
		if errors.As(err, &httpErr) {
			c.keepAlive = false
			c.fail(err)
		}

		return false
	}

	c.requests++
	c.route = router.ConstructRoute(c.srv.router, c.request)
	if c.route == nil {
		c.keepAlive = false
		if len(c.request.Host()) == 0 {
			c.fail(status.ErrMissingHost)
		} else {
			c.fail(status.ErrMisdirectedRequest)
		}

		return false
	}

	_ = c.SetState(Routed)
	c.applyRoute()

	if err = c.dispatch(); err != nil {
		if c.state < Compose {
			c.fail(err)
		} else if c.state != Closed {
			c.log.Warn("handler failed after the response was sent", "error", err)
		}
	}

	if c.state < Compose {
		if err = c.Finish(); err != nil {
			return false
		}
	}

	if c.upgraded || !c.keepAlive || c.state == Closed {
		return false
	}

	return c.reset()
}

// applyRoute enforces per-route settings before the handler is called.
func (c *Connection) applyRoute() {
	if c.route.Timeout > 0 {
		c.client.SetTimeout(c.route.Timeout)
	}

	content := &c.request.Content
	if content.Limited && content.Length > c.bodyLimit() {
		content.Exceeds = true
	}
}

func (c *Connection) bodyLimit() int64 {
	if c.route != nil && c.route.CacheLimit > 0 {
		return c.route.CacheLimit
	}

	return c.srv.cfg.Body.MaxSize
}

// fail replaces the response with the error one and sends it.
func (c *Connection) fail(err error) {
	response := c.response
	response.Content.Reset()
	response.Content.Data = nil
	response.File = nil
	response.ContentType = ""
	response.Status = 0
	response.Fail(err)

	if ferr := c.Finish(); ferr != nil {
		c.log.Debug("sending error response", "error", ferr)
	}
}

// reset prepares the connection for the next exchange, draining the unread body first.
func (c *Connection) reset() bool {
	if !c.body.claimed && !c.request.Content.IsFinalized() {
		if err := c.drain(); err != nil {
			return false
		}
	}

	_ = c.SetState(Reset)
	c.removeResources()
	c.request.Reset()
	c.response.Reset()
	c.parser.Reset()
	c.parts.Reset()
	c.route = nil
	c.headErr = nil
	c.headerKey = ""
	c.headerCount = 0
	c.body = bodyState{}
	c.client.SetTimeout(c.srv.cfg.NET.ReadTimeout)

	return c.SetState(HeaderRead) == nil
}

// removeResources deletes temporary files of stored multipart parts. Handlers willing to
// keep them must move them elsewhere.
func (c *Connection) removeResources() {
	for _, res := range c.request.Content.Resources {
		if err := res.Remove(); err != nil {
			c.log.Warn("removing temporary resource", "path", res.Path, "error", err)
		}
	}
}

// record reports the finished exchange into logs and metrics.
func (c *Connection) record() {
	code := int(c.response.Status)
	cost := timer.Now().Sub(c.began)
	site := ""
	if c.route != nil {
		site = c.route.Site.Host
	}

	c.srv.metrics.Request(site, c.request.Method.String(), code, cost)
	c.log.Debug("served",
		"method", c.request.Method.String(),
		"path", c.request.URI,
		"status", code,
		"duration", cost,
	)
}
