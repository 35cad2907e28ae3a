package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/indigo-web/webcore/internal/timer"
)

// ErrSendFileUnsupported is returned by SendFile when the connection can't transmit files
// without copying them through the user space. Callers fall back to buffered reads.
var ErrSendFileUnsupported = errors.New("sendfile is not supported by the connection")

// Client is the byte stream a connection is driven over. Exactly one operation is
// outstanding at any time: the connection goroutine is the only user of its client.
type Client interface {
	// Read returns a piece of data. The returned slice is valid until the next Read.
	Read() ([]byte, error)
	// Pushback preserves a chunk of data from previous read for the next read.
	Pushback([]byte)
	Write([]byte) (int, error)
	// SendFile transmits n bytes of the file starting at the offset.
	SendFile(f *os.File, offset, n int64) (int64, error)
	// SetTimeout changes the read timeout of further reads.
	SetTimeout(time.Duration)
	Conn() net.Conn
	Remote() net.Addr
	Close() error
}

type client struct {
	conn    net.Conn
	buff    []byte
	pending []byte
	timeout time.Duration
}

func NewClient(conn net.Conn, timeout time.Duration, buff []byte) Client {
	return &client{
		buff:    buff,
		conn:    conn,
		timeout: timeout,
	}
}

// Read reads data into the internal buffer and returns a piece of it back. Timeouts are also
// handled automatically.
func (c *client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(timer.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	}

	n, err := c.conn.Read(c.buff)
	return c.buff[:n], err
}

func (c *client) Pushback(b []byte) {
	c.pending = b
}

func (c *client) Write(b []byte) (int, error) {
	return c.conn.Write(b)
}

// SendFile relies on io.ReaderFrom of the connection, which is implemented via sendfile(2)
// by plain TCP connections.
func (c *client) SendFile(f *os.File, offset, n int64) (int64, error) {
	rf, ok := c.conn.(io.ReaderFrom)
	if !ok {
		return 0, ErrSendFileUnsupported
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	return rf.ReadFrom(io.LimitReader(f, n))
}

func (c *client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

func (c *client) Conn() net.Conn {
	return c.conn
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *client) Close() error {
	return c.conn.Close()
}
