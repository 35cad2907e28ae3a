package server

import (
	"errors"
	"html"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/mime"
	"github.com/indigo-web/webcore/http/proto"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/httpparser"
	"github.com/indigo-web/webcore/internal/timer"
	"github.com/indigo-web/webcore/transport"
)

const crlf = "\r\n"

// Finish sends the response. The optional code overrides the response status, which
// defaults to 200 OK.
func (c *Connection) Finish(code ...status.Code) error {
	if c.state >= Compose {
		return ErrResponseSent
	}

	_ = c.SetState(Compose)
	response := c.response
	if len(code) > 0 {
		response.Status = code[0]
	}

	if response.Status <= 0 {
		response.Status = status.OK
	}

	err := c.compose()
	_ = c.SetState(Finished)
	c.record()

	if err != nil {
		c.keepAlive = false
		c.log.Warn("sending response", "error", err)
		c.Break()
	}

	return err
}

// bodySource is the response body, either in memory or in a file.
type bodySource struct {
	file *os.File
	data []byte
	size int64
}

func (b bodySource) Close() error {
	if b.file == nil {
		return nil
	}

	return b.file.Close()
}

func (c *Connection) compose() error {
	src, ranges := c.prepareBody()
	defer func() {
		if err := src.Close(); err != nil {
			c.log.Warn("closing response file", "error", err)
		}
	}()

	c.keepAlive = c.keepAliveAllowed()

	response := c.response
	request := c.request
	code := response.Status
	withBody := request.Method != method.HEAD && code >= 200 &&
		code != status.NoContent && code != status.NotModified

	contentType := response.ContentType
	if len(contentType) == 0 && response.File != nil {
		contentType = response.File.Type
	}

	if len(contentType) == 0 && src.size > 0 {
		contentType = mime.Plain
	}

	coding := ""
	if len(ranges) == 0 {
		coding = c.negotiateCoding(src, contentType)
	}

	buff := c.appendHead(c.buff[:0])

	switch {
	case code == status.NoContent, code == status.NotModified, code < 200:
	case len(ranges) == 1:
		r := ranges[0]
		buff = appendHeader(buff, "Content-Type", contentType)
		buff = appendHeader(buff, "Content-Range", r.contentRange(src.size))
		buff = appendHeader(buff, "Content-Length", strconv.FormatInt(r.length(), 10))
	case len(ranges) > 1:
		boundary := httpparser.NewBoundary()
		c.rangeHeads = appendRangeHeads(c.rangeHeads[:0], ranges, boundary, contentType, src.size)
		buff = appendHeader(buff, "Content-Type", mime.ByteRanges+"; boundary="+boundary)
		buff = appendHeader(buff, "Content-Length", strconv.FormatInt(multipartLength(c.rangeHeads, ranges), 10))
	case len(coding) > 0:
		buff = appendHeader(buff, "Content-Type", contentType)
		buff = appendHeader(buff, "Content-Encoding", coding)
		buff = appendHeader(buff, "Vary", "Accept-Encoding")
		buff = appendHeader(buff, "Transfer-Encoding", "chunked")
	default:
		if len(contentType) > 0 {
			buff = appendHeader(buff, "Content-Type", contentType)
		}

		buff = appendHeader(buff, "Content-Length", strconv.FormatInt(src.size, 10))
	}

	buff = append(buff, crlf...)
	c.buff = buff

	if !withBody {
		return c.write(buff)
	}

	switch {
	case len(ranges) == 1:
		if err := c.write(buff); err != nil {
			return err
		}

		return c.transmit(src, ranges[0].start, ranges[0].length())
	case len(ranges) > 1:
		if err := c.write(buff); err != nil {
			return err
		}

		return c.transmitRanges(src, ranges)
	case len(coding) > 0:
		if err := c.write(buff); err != nil {
			return err
		}

		compressor := c.codecs.Get(coding)
		c.chunks.c = c
		compressor.ResetCompressor(&c.chunks)
		if err := c.copyBody(compressor, src, 0, src.size); err != nil {
			return err
		}

		return compressor.Close()
	case src.file == nil:
		c.buff = append(buff, src.data...)
		return c.write(c.buff)
	default:
		if err := c.write(buff); err != nil {
			return err
		}

		return c.transmit(src, 0, src.size)
	}
}

// appendHead renders the status line and every header except for the body framing ones.
func (c *Connection) appendHead(buff []byte) []byte {
	cfg := c.srv.cfg
	response := c.response
	request := c.request
	route := c.route

	if request.Version == proto.HTTP10 {
		buff = append(buff, proto.HTTP10.String()...)
	} else {
		buff = append(buff, proto.HTTP11.String()...)
	}

	buff = strconv.AppendUint(buff, uint64(response.Status), 10)
	buff = append(buff, ' ')
	buff = append(buff, status.Text(response.Status)...)
	buff = append(buff, crlf...)

	if !response.Headers.Has("date") {
		buff = appendHeader(buff, "Date", timer.Date())
	}

	if !response.Headers.Has("server") && len(cfg.Server.Name) > 0 {
		buff = appendHeader(buff, "Server", cfg.Server.Name)
	}

	if c.keepAlive {
		buff = appendHeader(buff, "Connection", "keep-alive")
		if timeout := cfg.NET.ReadTimeout; timeout > 0 {
			buff = appendHeader(buff, "Keep-Alive", "timeout="+strconv.Itoa(int(timeout.Seconds())))
		}
	} else {
		buff = appendHeader(buff, "Connection", "close")
	}

	for key, value := range response.Headers.Pairs() {
		if !reserved(key) {
			buff = appendHeader(buff, key, value)
		}
	}

	if route != nil {
		for key, value := range route.Headers.Pairs() {
			if !reserved(key) && !response.Headers.Has(key) {
				buff = appendHeader(buff, key, value)
			}
		}
	}

	for _, pair := range c.srv.defaults {
		if response.Headers.Has(pair.Key) || (route != nil && route.Headers.Has(pair.Key)) {
			continue
		}

		buff = appendHeader(buff, pair.Key, pair.Value)
	}

	if response.Error && len(response.Message) > 0 {
		buff = appendHeader(buff, "X-Error", sanitize(response.Message))
	}

	for _, ck := range response.Cookies {
		buff = append(buff, "Set-Cookie: "...)
		buff = ck.Append(buff)
		buff = append(buff, crlf...)
	}

	return buff
}

// reserved headers are managed by the connection only.
func reserved(key string) bool {
	return strcomp.EqualFold(key, "content-length") ||
		strcomp.EqualFold(key, "transfer-encoding") ||
		strcomp.EqualFold(key, "connection") ||
		strcomp.EqualFold(key, "keep-alive")
}

func appendHeader(buff []byte, key, value string) []byte {
	buff = append(buff, key...)
	buff = append(buff, ": "...)
	buff = append(buff, value...)
	return append(buff, crlf...)
}

// sanitize prevents a message from breaking the head apart.
func sanitize(message string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}

		return r
	}, message)
}

func (c *Connection) keepAliveAllowed() bool {
	content := &c.request.Content
	maxRequests := c.srv.cfg.Server.MaxRequests

	switch {
	case !c.keepAlive, c.state == Closed:
		return false
	case c.route != nil && !c.route.KeepAlive:
		return false
	case maxRequests > 0 && c.requests >= maxRequests:
		return false
	case content.IsFinalized():
		return true
	case c.body.claimed, content.Exceeds:
		// body was either interrupted in the middle or is too large to be drained
		return false
	default:
		return true
	}
}

// prepareBody opens the response body and resolves the requested ranges. Failures are
// turned into error responses.
func (c *Connection) prepareBody() (bodySource, []byteRange) {
	response := c.response
	if response.Status >= 400 && len(response.Content.Data) == 0 && response.File == nil {
		c.errorPage(true)
	}

	src, err := c.openBody()
	if err != nil {
		src = c.replaceBody(err)
	}

	if response.Status != status.OK || !c.rangeable() {
		return src, nil
	}

	ranges, ok := parseRanges(c.request.Headers.Value("range"), src.size)
	switch {
	case !ok:
		return src, nil
	case len(ranges) == 0:
		size := src.size
		if err = src.Close(); err != nil {
			c.log.Warn("closing response file", "error", err)
		}

		src = c.replaceBody(status.ErrRequestedRangeNotSatisfiable)
		response.Headers.Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
		return src, nil
	default:
		return src, ranges
	}
}

// replaceBody discards the response body in favour of the error page. If the page can't
// be opened either, a generated one is used.
func (c *Connection) replaceBody(err error) bodySource {
	response := c.response
	response.Content.Reset()
	response.Content.Data = nil
	response.File = nil
	response.ContentType = ""
	response.Status = 0
	response.Fail(err)
	c.errorPage(true)

	src, err := c.openBody()
	if err != nil {
		response.File = nil
		c.errorPage(false)
		src, _ = c.openBody()
	}

	return src
}

func (c *Connection) openBody() (bodySource, error) {
	response := c.response
	if response.File == nil {
		return bodySource{data: response.Content.Data, size: int64(len(response.Content.Data))}, nil
	}

	file, err := os.Open(response.File.Path)
	if err != nil {
		return bodySource{}, fileError(err)
	}

	stat, err := file.Stat()
	switch {
	case err != nil:
		_ = file.Close()
		return bodySource{}, fileError(err)
	case stat.IsDir():
		_ = file.Close()
		return bodySource{}, status.ErrForbidden
	}

	return bodySource{file: file, size: stat.Size()}, nil
}

// fileError maps filesystem errors to responses.
func fileError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return status.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return status.ErrForbidden
	default:
		return status.ErrInternalServerError
	}
}

// errorPage sets the body of an error response either to the route's error file or to a
// generated HTML page.
func (c *Connection) errorPage(useFiles bool) {
	response := c.response
	if route := c.route; useFiles && route != nil {
		if path, ok := route.ErrorFiles[response.Status]; ok {
			if !filepath.IsAbs(path) && len(route.DocumentRoot) > 0 {
				path = filepath.Join(route.DocumentRoot, path)
			}

			response.File = &http.Resource{Path: path, Type: mimeOf(route, path)}
			response.ContentType = ""
			return
		}
	}

	code := strconv.Itoa(int(response.Status))
	text := html.EscapeString(string(status.Text(response.Status)))

	page := make([]byte, 0, 256)
	page = append(page, "<!DOCTYPE html>\n<html>\n<head><title>"...)
	page = append(page, code...)
	page = append(page, ' ')
	page = append(page, text...)
	page = append(page, "</title></head>\n<body>\n<h1>"...)
	page = append(page, code...)
	page = append(page, ' ')
	page = append(page, text...)
	page = append(page, "</h1>\n"...)
	if len(response.Message) > 0 {
		page = append(page, "<p>"...)
		page = append(page, html.EscapeString(response.Message)...)
		page = append(page, "</p>\n"...)
	}

	if name := c.srv.cfg.Server.Name; len(name) > 0 {
		page = append(page, "<hr><address>"...)
		page = append(page, html.EscapeString(name)...)
		page = append(page, "</address>\n"...)
	}

	page = append(page, "</body>\n</html>\n"...)
	response.Content.Set(page)
	response.ContentType = mime.HTML + "; charset=utf-8"
}

// negotiateCoding picks the content coding the body is compressed with. Empty string
// means no compression.
func (c *Connection) negotiateCoding(src bodySource, contentType string) string {
	route := c.route
	request := c.request
	switch {
	case route == nil, len(route.Compression.Codings) == 0:
		return ""
	case request.Version != proto.HTTP11, c.response.Status != status.OK:
		return ""
	case c.response.Headers.Has("content-encoding"), !mime.Textual(contentType):
		return ""
	}

	minSize := route.Compression.MinSize
	if minSize <= 0 {
		minSize = c.srv.cfg.Server.SmallBody
	}

	if src.size < minSize {
		return ""
	}

	return c.codecs.Negotiate(request.Headers.Value("accept-encoding"), route.Compression.Codings)
}

func (c *Connection) write(b []byte) error {
	_, err := c.client.Write(b)
	if err == nil {
		c.progress.Touch()
	}

	return err
}

// transmit sends n bytes of the body starting at offset. Files are sent with sendfile
// whenever the transport supports it.
func (c *Connection) transmit(src bodySource, offset, n int64) error {
	if src.file == nil {
		return c.write(src.data[offset : offset+n])
	}

	for n > 0 {
		sent, err := c.client.SendFile(src.file, offset, n)
		if errors.Is(err, transport.ErrSendFileUnsupported) {
			return c.copyBody(c.client, src, offset, n)
		}

		offset += sent
		n -= sent

		switch transport.Classify(int(sent), err) {
		case transport.Next, transport.DoneAsync:
			c.progress.Touch()
		case transport.Skip:
			if n > 0 {
				return io.ErrUnexpectedEOF
			}
		default:
			return err
		}
	}

	return nil
}

// copyBody writes the body through the user space, in chunks of the configured size.
func (c *Connection) copyBody(dst io.Writer, src bodySource, offset, n int64) error {
	if src.file == nil {
		_, err := dst.Write(src.data[offset : offset+n])
		return err
	}

	if len(c.fileBuff) == 0 {
		c.fileBuff = make([]byte, c.srv.cfg.Body.FileChunkSize)
	}

	for n > 0 {
		chunk := c.fileBuff[:min(int64(len(c.fileBuff)), n)]
		read, err := src.file.ReadAt(chunk, offset)
		if read > 0 {
			if _, werr := dst.Write(chunk[:read]); werr != nil {
				return werr
			}

			c.progress.Touch()
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

// chunkedWriter encodes everything written into it with the chunked transfer coding.
// Closing it writes the terminating chunk.
type chunkedWriter struct {
	c    *Connection
	buff []byte
}

func (w *chunkedWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	w.buff = httpparser.AppendChunk(w.buff[:0], p)
	if err := w.c.write(w.buff); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (w *chunkedWriter) Close() error {
	w.buff = httpparser.AppendChunk(w.buff[:0], nil)
	return w.c.write(w.buff)
}
