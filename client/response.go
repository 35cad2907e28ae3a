package client

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/codec"
	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/proto"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/httpparser"
	"github.com/indigo-web/webcore/internal/strutil"
)

type framing uint8

const (
	// noBody responses end with their heads.
	noBody framing = iota
	lengthBody
	chunkedBody
	// closeBody lasts until the peer closes the connection.
	closeBody
)

type bodyFraming struct {
	framing  framing
	length   int64
	received int64
	trailer  bool
}

// Receive reads the response head, skipping interim 1xx responses except for 101.
func (c *Client) Receive() (*http.ResponseFrame, error) {
	for {
		c.response.Reset()
		c.headErr = nil
		c.headerKey = ""
		c.headerCount = 0
		c.parser.Reset()

		if err := c.readHead(); err != nil {
			c.keepAlive = false
			return nil, err
		}

		if code := c.response.Status; code >= 200 || code == status.SwitchingProtocols {
			break
		}
	}

	if err := c.frameBody(); err != nil {
		c.keepAlive = false
		return nil, err
	}

	c.pending = c.body.framing != noBody

	return c.response, nil
}

func (c *Client) readHead() error {
	c.head = c.head[:0]
	lastLen := 0

	for {
		data, err := c.conn.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: connection closed before the response head", ErrBadMessage)
			}

			return wrapNetErr(err)
		}

		prev := len(c.head)
		c.head = append(c.head, data...)

		switch n := c.parser.ParseResponse(c.head, lastLen); n {
		case httpparser.Incomplete:
			if len(c.head) > c.cfg.Headers.MaxSpace {
				return fmt.Errorf("%w: response head exceeds %d bytes", ErrValueTooLarge, c.cfg.Headers.MaxSpace)
			}

			lastLen = len(c.head)
		case httpparser.Malformed:
			if c.headErr != nil {
				return c.headErr
			}

			return fmt.Errorf("%w: malformed response head", ErrBadMessage)
		default:
			if rest := data[n-prev:]; len(rest) > 0 {
				c.conn.Pushback(rest)
			}

			return nil
		}
	}
}

func (c *Client) abort(err error) bool {
	c.headErr = err
	return false
}

func (c *Client) bindHeadCallbacks() {
	p := c.parser
	response := c.response

	p.OnVersion = func(value []byte) bool {
		c.version = proto.FromBytes(value)
		if c.version == proto.Unknown {
			return c.abort(fmt.Errorf("%w: unsupported protocol %q", ErrBadMessage, value))
		}

		return true
	}
	p.OnStatusCode = func(value []byte) bool {
		code, err := strconv.ParseUint(string(value), 10, 16)
		if err != nil || code < 100 || code > 999 {
			return c.abort(fmt.Errorf("%w: bad status code %q", ErrBadMessage, value))
		}

		response.Status = status.Code(code)
		return true
	}
	p.OnHeaderField = func(value []byte) bool {
		if len(value) > 0 {
			c.headerCount++
			if c.headerCount > c.cfg.Headers.MaxNumber {
				return c.abort(fmt.Errorf("%w: too many headers", ErrValueTooLarge))
			}
		}

		c.headerKey = string(value)
		return true
	}
	p.OnHeaderValue = func(value []byte) bool {
		if len(c.headerKey) > 0 {
			response.Headers.Add(c.headerKey, string(value))
			return true
		}

		// obsolete line folding
		pairs := response.Headers.Expose()
		if len(pairs) == 0 {
			return c.abort(fmt.Errorf("%w: continuation line without a header", ErrBadMessage))
		}

		pairs[len(pairs)-1].Value += " " + string(value)
		return true
	}
}

// frameBody determines how the response body is delimited and whether the connection
// may be reused afterward.
func (c *Client) frameBody() error {
	headers := c.response.Headers
	code := c.response.Status
	connection := headers.Value("connection")

	if c.version == proto.HTTP10 {
		c.keepAlive = strutil.ContainsToken(connection, "keep-alive")
	} else {
		c.keepAlive = !strutil.ContainsToken(connection, "close")
	}

	c.body = bodyFraming{trailer: headers.Has("trailer")}

	switch {
	case c.method == method.HEAD, code < 200, code == status.NoContent, code == status.NotModified:
		c.body.framing = noBody
	case headers.Has("transfer-encoding"):
		if strutil.ContainsToken(headers.Value("transfer-encoding"), "chunked") {
			c.body.framing = chunkedBody
			c.chunked = chunkedbody.NewParser(chunkedbody.DefaultSettings())
		} else {
			c.body.framing = closeBody
			c.keepAlive = false
		}
	case headers.Has("content-length"):
		length, err := strconv.ParseInt(strutil.StripWS(headers.Value("content-length")), 10, 64)
		if err != nil || length < 0 {
			return fmt.Errorf("%w: bad Content-Length", ErrBadMessage)
		}

		for value := range headers.Values("content-length") {
			if strutil.StripWS(value) != strconv.FormatInt(length, 10) {
				return fmt.Errorf("%w: conflicting Content-Length values", ErrBadMessage)
			}
		}

		c.body.framing = lengthBody
		c.body.length = length
		if length == 0 {
			c.body.framing = noBody
		}
	default:
		c.body.framing = closeBody
		c.keepAlive = false
	}

	return nil
}

// Consume reads the whole response body into the response content, decoding its content
// coding. Zero maxSize disables the limit.
func (c *Client) Consume(maxSize int64) error {
	if !c.pending {
		return nil
	}

	c.pending = false
	content := &c.response.Content

	var src codec.Fetcher = rawBody{c}
	if coding := strutil.StripWS(c.response.Headers.Value("content-encoding")); len(coding) > 0 &&
		!strcomp.EqualFold(coding, "identity") {
		decoder := c.codecs.Get(coding)
		if decoder == nil {
			c.keepAlive = false
			return fmt.Errorf("%w: unsupported content coding %q", ErrBadMessage, coding)
		}

		if err := decoder.ResetDecompressor(src, c.cfg.NET.ReadBufferSize); err != nil {
			c.keepAlive = false
			return fmt.Errorf("%w: %s", ErrBadMessage, err)
		}

		src = decoder
	}

	for {
		data, err := src.Fetch()
		if maxSize > 0 && int64(len(content.Data)+len(data)) > maxSize {
			c.keepAlive = false
			return fmt.Errorf("%w: body exceeds %d bytes", ErrValueTooLarge, maxSize)
		}

		content.Append(data)

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			content.Finalize()
			return nil
		default:
			c.keepAlive = false
			return err
		}
	}
}

// skip discards the unread body of the previous response.
func (c *Client) skip() error {
	c.pending = false
	raw := rawBody{c}

	for {
		_, err := raw.Fetch()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		default:
			c.keepAlive = false
			return err
		}
	}
}

// rawBody fetches the body as it goes over the wire, without the transfer coding.
type rawBody struct {
	c *Client
}

func (r rawBody) Fetch() ([]byte, error) {
	c := r.c
	body := &c.body

	switch body.framing {
	case lengthBody:
		remaining := body.length - body.received
		if remaining <= 0 {
			return nil, io.EOF
		}

		data, err := c.read()
		if err != nil {
			return nil, err
		}

		if int64(len(data)) >= remaining {
			if extra := data[remaining:]; len(extra) > 0 {
				c.conn.Pushback(extra)
			}

			body.received = body.length
			return data[:remaining], io.EOF
		}

		body.received += int64(len(data))
		return data, nil
	case chunkedBody:
		data, err := c.read()
		if err != nil {
			return nil, err
		}

		chunk, extra, err := c.chunked.Parse(data, body.trailer)
		if len(extra) > 0 {
			c.conn.Pushback(extra)
		}

		switch {
		case err == nil:
			body.received += int64(len(chunk))
			return chunk, nil
		case errors.Is(err, io.EOF):
			body.received += int64(len(chunk))
			body.framing = noBody
			return chunk, io.EOF
		default:
			return nil, fmt.Errorf("%w: %s", ErrProtocol, err)
		}
	case closeBody:
		data, err := c.conn.Read()
		if errors.Is(err, io.EOF) {
			body.framing = noBody
			return data, io.EOF
		}

		if err != nil {
			return nil, wrapNetErr(err)
		}

		return data, nil
	default:
		return nil, io.EOF
	}
}

// read reads a piece of a delimited body, where the connection being closed means the
// body was truncated.
func (c *Client) read() ([]byte, error) {
	data, err := c.conn.Read()
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, io.EOF):
		return nil, fmt.Errorf("%w: body is truncated", ErrBadMessage)
	default:
		return nil, wrapNetErr(err)
	}
}
