package client

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/proto"
	"github.com/indigo-web/webcore/httpparser"
	"github.com/indigo-web/webcore/transport"
)

const crlf = "\r\n"

// Send writes the request and receives the response head. The body is left to Consume;
// if it's never consumed, the next Send skips it. Requests carrying resources are sent as
// multipart/form-data, part by part.
func (c *Client) Send(fetch *http.FetchFrame) (*http.ResponseFrame, error) {
	if c.closed {
		return nil, ErrClosed
	}

	if c.pending {
		if err := c.skip(); err != nil {
			return nil, err
		}
	}

	if c.used && !c.keepAlive {
		return nil, ErrClosed
	}

	if err := c.setDeadline(fetch.Timeout); err != nil {
		return nil, err
	}

	target, err := requestTarget(fetch.URL)
	if err != nil {
		return nil, err
	}

	resources := fetch.Content.Resources
	length := int64(len(fetch.Content.Data))
	boundary := ""
	if len(resources) > 0 {
		boundary = httpparser.NewBoundary()
		if length, err = c.multipartLength(resources, boundary); err != nil {
			return nil, err
		}
	}

	buff := c.appendHead(c.buff[:0], fetch, target, boundary, length)
	if len(resources) == 0 {
		buff = append(buff, fetch.Content.Data...)
	}

	c.buff = buff
	c.used = true
	c.keepAlive = true
	if err = c.write(buff); err != nil {
		return nil, err
	}

	if len(resources) > 0 {
		for i := range resources {
			if err = c.upload(&resources[i], boundary, i == 0); err != nil {
				return nil, err
			}
		}

		c.buff = httpparser.AppendClosing(c.buff[:0], boundary, false)
		if err = c.write(c.buff); err != nil {
			return nil, err
		}
	}

	c.method = fetch.Method

	return c.Receive()
}

func (c *Client) appendHead(buff []byte, fetch *http.FetchFrame, target, boundary string, length int64) []byte {
	buff = append(buff, fetch.Method.String()...)
	buff = append(buff, ' ')
	buff = append(buff, target...)
	buff = append(buff, ' ')
	buff = append(buff, proto.HTTP11.Token()...)
	buff = append(buff, crlf...)

	headers := fetch.Headers
	if headers == nil || !headers.Has("host") {
		buff = appendHeader(buff, "Host", c.host)
	}

	if headers != nil {
		for key, value := range headers.Pairs() {
			if strcomp.EqualFold(key, "content-length") || strcomp.EqualFold(key, "transfer-encoding") {
				continue
			}

			buff = appendHeader(buff, key, value)
		}
	}

	if headers == nil || !headers.Has("accept-encoding") {
		if accept := c.codecs.AcceptEncoding(); len(accept) > 0 {
			buff = appendHeader(buff, "Accept-Encoding", accept)
		}
	}

	if fetch.Cookies != nil && fetch.Cookies.Len() > 0 {
		buff = append(buff, "Cookie: "...)
		for i, pair := range fetch.Cookies.Expose() {
			if i > 0 {
				buff = append(buff, "; "...)
			}

			buff = append(buff, pair.Key...)
			buff = append(buff, '=')
			buff = append(buff, pair.Value...)
		}

		buff = append(buff, crlf...)
	}

	if len(boundary) > 0 {
		buff = appendHeader(buff, "Content-Type", httpparser.MultipartContentType(boundary))
	}

	switch fetch.Method {
	case method.POST, method.PUT, method.PATCH:
		buff = appendHeader(buff, "Content-Length", strconv.FormatInt(length, 10))
	default:
		if length > 0 {
			buff = appendHeader(buff, "Content-Length", strconv.FormatInt(length, 10))
		}
	}

	return append(buff, crlf...)
}

func appendHeader(buff []byte, key, value string) []byte {
	buff = append(buff, key...)
	buff = append(buff, ": "...)
	buff = append(buff, value...)
	return append(buff, crlf...)
}

// requestTarget extracts the origin-form target out of either an absolute URL or a path.
func requestTarget(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "/") {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadMessage, err)
	}

	return u.RequestURI(), nil
}

// multipartLength precomputes the exact length of the multipart body, so it's sent with
// Content-Length and files can be transmitted as they are.
func (c *Client) multipartLength(resources []http.Resource, boundary string) (int64, error) {
	var length int64
	for i := range resources {
		res := &resources[i]
		c.buff = httpparser.AppendPartHead(c.buff[:0], boundary, res, i == 0)
		length += int64(len(c.buff))

		if res.IsInMemory() {
			length += int64(len(res.Data))
			continue
		}

		stat, err := os.Stat(res.Path)
		if err != nil {
			return 0, err
		}

		res.Length = stat.Size()
		length += res.Length
	}

	c.buff = httpparser.AppendClosing(c.buff[:0], boundary, false)

	return length + int64(len(c.buff)), nil
}

// upload sends a single part. Files go with sendfile, falling back to buffered reads if
// the connection can't do that.
func (c *Client) upload(res *http.Resource, boundary string, first bool) error {
	c.buff = httpparser.AppendPartHead(c.buff[:0], boundary, res, first)
	if res.IsInMemory() {
		c.buff = append(c.buff, res.Data...)
		return c.write(c.buff)
	}

	if err := c.write(c.buff); err != nil {
		return err
	}

	file, err := os.Open(res.Path)
	if err != nil {
		return err
	}

	defer func() {
		if err := file.Close(); err != nil {
			c.log.Warn("closing uploaded file", "path", res.Path, "error", err)
		}
	}()

	var offset int64
	for n := res.Length; n > 0; {
		sent, err := c.conn.SendFile(file, offset, n)
		if errors.Is(err, transport.ErrSendFileUnsupported) {
			return c.copyFile(file, offset, n)
		}

		offset += sent
		n -= sent

		switch transport.Classify(int(sent), err) {
		case transport.Next, transport.DoneAsync:
		case transport.Skip:
			if n > 0 {
				return io.ErrUnexpectedEOF
			}
		default:
			return wrapNetErr(err)
		}
	}

	return nil
}

func (c *Client) copyFile(file *os.File, offset, n int64) error {
	if len(c.fileBuff) == 0 {
		c.fileBuff = make([]byte, c.cfg.Body.FileChunkSize)
	}

	for n > 0 {
		chunk := c.fileBuff[:min(int64(len(c.fileBuff)), n)]
		read, err := file.ReadAt(chunk, offset)
		if read > 0 {
			if werr := c.write(chunk[:read]); werr != nil {
				return werr
			}
		}

		offset += int64(read)
		n -= int64(read)

		switch {
		case err == nil, n == 0:
		case errors.Is(err, io.EOF):
			return io.ErrUnexpectedEOF
		default:
			return err
		}
	}

	return nil
}

func (c *Client) write(b []byte) error {
	if _, err := c.conn.Write(b); err != nil {
		c.keepAlive = false
		return wrapNetErr(err)
	}

	return nil
}
