package server

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	"github.com/indigo-web/webcore/http/cookie"
	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/proto"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/httpparser"
	"github.com/indigo-web/webcore/internal/strutil"
	"github.com/indigo-web/webcore/kv"
	"github.com/indigo-web/webcore/transport"
)

// ReadHead reads and parses the request head. Errors, which aren't status.HTTPError, come
// from the transport and mean the connection must be dropped silently.
func (c *Connection) ReadHead() error {
	cfg := c.srv.cfg
	c.head = c.head[:0]
	lastLen := 0

	for {
		data, err := c.client.Read()
		if err != nil {
			if len(c.head) > 0 && transport.Classify(0, err) == transport.Timeout {
				return status.ErrRequestTimeout
			}

			return err
		}

		c.progress.Touch()
		prev := len(c.head)
		c.head = append(c.head, data...)

		switch n := c.parser.ParseRequest(c.head, lastLen); n {
		case httpparser.Incomplete:
			if bytes.IndexByte(c.head, '\n') == -1 && len(c.head) > cfg.URI.MaxLength {
				return status.ErrURITooLong
			}

			if len(c.head) > cfg.Headers.MaxSpace {
				return status.ErrHeaderFieldsTooLarge
			}

			lastLen = len(c.head)
		case httpparser.Malformed:
			if c.headErr != nil {
				return c.headErr
			}

			return status.ErrMalformedHead
		default:
			if n > cfg.Headers.MaxSpace {
				return status.ErrHeaderFieldsTooLarge
			}

			if rest := data[n-prev:]; len(rest) > 0 {
				c.client.Pushback(rest)
			}

			return c.completeHead()
		}
	}
}

// abort remembers the reason parsing was interrupted with.
func (c *Connection) abort(err error) bool {
	c.headErr = err
	return false
}

func (c *Connection) bindHeadCallbacks() {
	p := c.parser
	request := c.request
	cfg := c.srv.cfg

	p.OnMethodValue = func(value []byte) bool {
		request.Method = method.Parse(uf.B2S(value))
		if request.Method == method.Unknown {
			return c.abort(status.ErrMethodNotImplemented)
		}

		return true
	}

	p.OnPathValue = func(value []byte) bool {
		if len(value) > cfg.URI.MaxLength {
			return c.abort(status.ErrURITooLong)
		}

		target, ok := requestTarget(uf.B2S(value))
		if !ok {
			return c.abort(status.ErrBadRequest)
		}

		uri, ok := strutil.URLDecode(target)
		if !ok {
			return c.abort(status.ErrURLDecoding)
		}

		request.URI = strings.Clone(uri)
		return true
	}

	p.OnQueryValue = func(value []byte) bool {
		request.Query = string(value)
		if !parseQuery(request.Params, request.Query) {
			return c.abort(status.ErrURLDecoding)
		}

		return true
	}

	p.OnVersion = func(value []byte) bool {
		request.Version = proto.FromBytes(value)
		if request.Version != proto.Unknown {
			return true
		}

		if bytes.HasPrefix(value, []byte("HTTP/")) {
			return c.abort(status.ErrHTTPVersionNotSupported)
		}

		return c.abort(status.ErrMalformedHead)
	}

	p.OnHeaderField = func(value []byte) bool {
		if len(value) == 0 {
			// obsolete line folding: the value continues the previous header
			c.headerKey = ""
			return true
		}

		if c.headerCount++; c.headerCount > cfg.Headers.MaxNumber {
			return c.abort(status.ErrTooManyHeaders)
		}

		c.headerKey = string(value)
		return true
	}

	p.OnHeaderValue = func(value []byte) bool {
		if len(c.headerKey) > 0 {
			request.Headers.Add(c.headerKey, string(value))
			return true
		}

		pairs := request.Headers.Expose()
		if len(pairs) == 0 {
			return c.abort(status.ErrMalformedHead)
		}

		if len(value) > 0 {
			last := &pairs[len(pairs)-1]
			last.Value += " " + string(value)
		}

		return true
	}
}

// requestTarget extracts the path out of origin-form, absolute-form and asterisk-form targets.
func requestTarget(target string) (string, bool) {
	switch {
	case len(target) > 0 && target[0] == '/':
		return target, true
	case target == "*":
		return target, true
	}

	_, rest, found := strings.Cut(target, "://")
	if !found {
		return "", false
	}

	slash := strings.IndexByte(rest, '/')
	if slash == -1 {
		return "/", true
	}

	return rest[slash:], true
}

// parseQuery fills params with urlencoded pairs. Keys without values are kept.
func parseQuery(params *kv.Storage, query string) bool {
	for len(query) > 0 {
		var pair string
		pair, query, _ = strings.Cut(query, "&")
		if len(pair) == 0 {
			continue
		}

		key, value, _ := strings.Cut(pair, "=")
		key, okKey := strutil.URLDecode(strings.ReplaceAll(key, "+", " "))
		value, okValue := strutil.URLDecode(strings.ReplaceAll(value, "+", " "))
		if !okKey || !okValue {
			return false
		}

		params.Add(key, value)
	}

	return true
}

// completeHead validates the parsed head as a whole and decides the body framing.
func (c *Connection) completeHead() error {
	request := c.request
	headers := request.Headers

	if request.Version == proto.HTTP11 && !headers.Has("host") {
		return status.ErrMissingHost
	}

	for value := range headers.Values("cookie") {
		cookie.Parse(request.Cookies, value)
	}

	connection := headers.Value("connection")
	if request.Version == proto.HTTP11 {
		c.keepAlive = !strutil.ContainsToken(connection, "close")
	} else {
		c.keepAlive = strutil.ContainsToken(connection, "keep-alive")
	}

	content := &request.Content
	length, hasLength := headers.Get("content-length")

	if headers.Has("transfer-encoding") {
		if hasLength {
			return status.ErrBadRequest
		}

		codings := headers.Value("transfer-encoding")
		if !strcomp.EqualFold(strutil.StripWS(codings), "chunked") {
			return status.ErrTransferEncoding
		}

		c.body.chunked = true
		content.Limited = false
		return nil
	}

	content.Limited = true
	if !hasLength {
		return nil
	}

	for value := range headers.Values("content-length") {
		if value != length {
			return status.ErrBadRequest
		}
	}

	n, err := strconv.ParseInt(length, 10, 64)
	if err != nil || n < 0 {
		return status.ErrBadRequest
	}

	content.Length = n
	return nil
}
