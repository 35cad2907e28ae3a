package dummy

import (
	"io"
	"net"
	"os"
	"time"

	"github.com/indigo-web/webcore/transport"
)

var _ transport.Client = new(Client)

// Client returns the data it was initialised with piece by piece, either looping over them
// or reporting io.EOF once exhausted. It also journals all the written data, making it
// thereby a universal mock suitable for most of the tests.
type Client struct {
	closed  bool
	loop    bool
	pointer int
	tmp     []byte
	written []byte
	data    [][]byte
	remote  net.Addr
}

func NewMockClient(data ...[]byte) *Client {
	return &Client{
		data:   data,
		remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8080},
	}
}

// LoopReads makes the client start over once all the pieces were read.
func (c *Client) LoopReads() *Client {
	c.loop = true
	return c
}

func (c *Client) Read() (data []byte, err error) {
	if c.closed {
		return nil, io.EOF
	}

	if len(c.tmp) > 0 {
		data, c.tmp = c.tmp, nil

		return data, nil
	}

	if c.pointer >= len(c.data) {
		if !c.loop || len(c.data) == 0 {
			return nil, io.EOF
		}

		c.pointer = 0
	}

	piece := c.data[c.pointer]
	c.pointer++

	return piece, nil
}

func (c *Client) Pushback(takeback []byte) {
	c.tmp = takeback
}

func (c *Client) Write(p []byte) (int, error) {
	if c.closed {
		return 0, net.ErrClosed
	}

	c.written = append(c.written, p...)
	return len(p), nil
}

// SendFile is never supported, so the buffered path gets exercised.
func (c *Client) SendFile(*os.File, int64, int64) (int64, error) {
	return 0, transport.ErrSendFileUnsupported
}

func (c *Client) SetTimeout(time.Duration) {}

func (c *Client) Conn() net.Conn {
	return nil
}

func (c *Client) Remote() net.Addr {
	return c.remote
}

func (c *Client) Close() error {
	c.closed = true
	return nil
}

// Written returns everything written so far.
func (c *Client) Written() string {
	return string(c.written)
}

// Closed tells whether Close was called.
func (c *Client) Closed() bool {
	return c.closed
}

// NewNopClient returns a client which has nothing to read.
func NewNopClient() *Client {
	return NewMockClient()
}
