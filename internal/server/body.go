package server

import (
	"crypto/md5"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/codec"
	"github.com/indigo-web/webcore/http/mime"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/httpparser"
	"github.com/indigo-web/webcore/internal/hexconv"
	"github.com/indigo-web/webcore/internal/strutil"
	"github.com/indigo-web/webcore/kv"
	"github.com/indigo-web/webcore/router"
	"github.com/indigo-web/webcore/transport"
)

// bodyState is the per-exchange progress of the request body.
type bodyState struct {
	chunked bool
	claimed bool

	// multipart part being currently stored
	part      http.Resource
	partOpen  bool
	partFile  *os.File
	partKey   string
	partValue string
	partErr   error
	// orphan is a temporary file of a part which wasn't completely stored yet
	orphan string
	stored int64
	eat    bool
	onPart router.ResourceCallback
}

// rawBody yields the body with the transfer coding removed.
type rawBody struct {
	c *Connection
}

func (r rawBody) Fetch() ([]byte, error) {
	return r.c.fetchRaw()
}

func (c *Connection) fetchRaw() ([]byte, error) {
	content := &c.request.Content
	if content.IsFinalized() {
		return nil, io.EOF
	}

	if c.body.chunked {
		return c.fetchChunked()
	}

	data, err := c.client.Read()
	if err != nil {
		return nil, c.bodyError(err)
	}

	c.progress.Touch()
	if remaining := content.Remaining(); int64(len(data)) > remaining {
		c.client.Pushback(data[remaining:])
		data = data[:remaining]
	}

	content.Advance(len(data))
	if content.IsFinalized() {
		return data, io.EOF
	}

	return data, nil
}

func (c *Connection) fetchChunked() ([]byte, error) {
	content := &c.request.Content

	for {
		data, err := c.client.Read()
		if err != nil {
			return nil, c.bodyError(err)
		}

		c.progress.Touch()
		length := len(data)

		switch n := c.parser.ParseDecodeChunked(data, &length); n {
		case httpparser.Malformed:
			c.keepAlive = false
			return nil, status.ErrBadChunk
		case httpparser.Incomplete:
			if length == 0 {
				continue
			}

			content.Advance(length)
			return data[:length], nil
		default:
			if n > 0 {
				c.client.Pushback(data[length : length+n])
			}

			content.Advance(length)
			content.Finalize()
			return data[:length], io.EOF
		}
	}
}

// bodyError converts a transport failure during the body into the exchange's error.
// The connection can't be reused anyway.
func (c *Connection) bodyError(err error) error {
	c.keepAlive = false

	switch transport.Classify(0, err) {
	case transport.Timeout:
		return status.ErrRequestTimeout
	case transport.Done:
		return status.ErrBadRequest
	default:
		return err
	}
}

// fetcher returns the body source with content coding removed as well.
func (c *Connection) fetcher() (codec.Fetcher, error) {
	raw := rawBody{c}
	coding := strutil.StripWS(c.request.Headers.Value("content-encoding"))
	if len(coding) == 0 || strcomp.EqualFold(coding, "identity") {
		return raw, nil
	}

	inst := c.codecs.Get(coding)
	if inst == nil {
		return nil, status.ErrUnsupportedEncoding
	}

	if err := inst.ResetDecompressor(raw, c.srv.cfg.NET.ReadBufferSize); err != nil {
		return nil, status.ErrBadRequest
	}

	return inst, nil
}

func (c *Connection) claimBody() error {
	if c.body.claimed {
		return ErrBodyConsumed
	}

	if c.state >= Compose {
		return ErrResponseSent
	}

	c.body.claimed = true
	return c.SetState(Body)
}

// Consume streams the body into the callback. Unless the body exceeds the limit, it's also
// buffered into the request's content data.
func (c *Connection) Consume(cb router.StreamCallback, eat bool) error {
	if err := c.claimBody(); err != nil {
		return err
	}

	fetcher, err := c.fetcher()
	if err != nil {
		return err
	}

	content := &c.request.Content
	limit := c.bodyLimit()

	for {
		data, err := fetcher.Fetch()
		if len(data) > 0 && !eat {
			if !content.Exceeds && int64(len(content.Data)+len(data)) > limit {
				content.Exceeds = true
				content.Data = content.Data[:0]
			}

			if !content.Exceeds {
				content.Append(data)
			}

			if cb != nil {
				if cerr := cb(content, data); cerr != nil {
					return cerr
				}
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if eat || cb == nil {
				return nil
			}

			return cb(content, nil)
		default:
			return err
		}
	}
}

// Skip discards the body.
func (c *Connection) Skip() error {
	return c.Consume(nil, true)
}

// drain discards the body nobody has read, so the connection can be reused.
func (c *Connection) drain() error {
	if c.request.Content.Exceeds {
		return status.ErrBodyTooLarge
	}

	c.body.claimed = true
	fetcher, err := c.fetcher()
	if err != nil {
		return err
	}

	for {
		if _, err = fetcher.Fetch(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}
	}
}

// Store parses the multipart body, saving parts under the site's resource root or into
// memory if it's unset.
func (c *Connection) Store(cb router.ResourceCallback, eat bool) error {
	contentType := c.request.Headers.Value("content-type")
	value, params := strutil.CutHeader(contentType)
	if !strcomp.EqualFold(value, mime.Multipart) {
		return status.ErrUnsupportedMediaType
	}

	var boundary string
	for key, param := range strutil.WalkKV(params) {
		if strcomp.EqualFold(key, "boundary") {
			boundary = param
		}
	}

	if len(boundary) == 0 {
		return status.ErrBadMultipart
	}

	if err := c.claimBody(); err != nil {
		return err
	}

	fetcher, err := c.fetcher()
	if err != nil {
		return err
	}

	c.body.eat = eat
	c.body.onPart = cb
	defer c.dropOrphan()

	for {
		data, err := fetcher.Fetch()
		if len(data) > 0 && c.parts.MultipartParse(boundary, data, len(data)) == httpparser.Malformed {
			if c.body.partErr != nil {
				return c.body.partErr
			}

			return status.ErrBadMultipart
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if !c.parts.MultipartDone() {
				return status.ErrBadMultipart
			}

			if eat || cb == nil {
				return nil
			}

			return cb(nil)
		default:
			return err
		}
	}
}

func (c *Connection) partFailed(err error) bool {
	c.body.partErr = err
	return false
}

func (c *Connection) bindPartCallbacks() {
	p := c.parts

	p.OnResourceBegin = func() bool {
		c.body.part = http.Resource{Headers: kv.New()}
		c.body.partOpen = false
		c.body.partKey, c.body.partValue = "", ""
		return true
	}

	p.OnHeaderField = func(value []byte) bool {
		c.commitPartHeader()
		c.body.partKey = string(value)
		return true
	}

	p.OnHeaderValue = func(value []byte) bool {
		c.body.partValue += string(value)
		return true
	}

	p.OnContentData = func(value []byte) bool {
		if err := c.openPart(); err != nil {
			return c.partFailed(err)
		}

		if c.body.eat {
			return true
		}

		part := &c.body.part
		part.Length += int64(len(value))

		if c.body.partFile != nil {
			if _, err := c.body.partFile.Write(value); err != nil {
				return c.partFailed(err)
			}

			return true
		}

		if c.body.stored += int64(len(value)); c.body.stored > c.bodyLimit() {
			return c.partFailed(status.ErrBodyTooLarge)
		}

		part.Data = append(part.Data, value...)
		return true
	}

	p.OnResourceEnd = func() bool {
		if err := c.openPart(); err != nil {
			return c.partFailed(err)
		}

		if err := c.closePart(); err != nil {
			return c.partFailed(err)
		}

		c.body.orphan = ""
		if c.body.eat {
			return true
		}

		content := &c.request.Content
		content.Resources = append(content.Resources, c.body.part)
		if c.body.onPart == nil {
			return true
		}

		if err := c.body.onPart(&content.Resources[len(content.Resources)-1]); err != nil {
			return c.partFailed(err)
		}

		return true
	}
}

func (c *Connection) commitPartHeader() {
	if len(c.body.partKey) > 0 {
		c.body.part.Headers.Add(c.body.partKey, c.body.partValue)
	}

	c.body.partKey, c.body.partValue = "", ""
}

// openPart finishes the part head once its content begins.
func (c *Connection) openPart() error {
	if c.body.partOpen {
		return nil
	}

	c.body.partOpen = true
	c.commitPartHeader()

	part := &c.body.part
	part.Type = part.Headers.Value("content-type")
	_, params := strutil.CutHeader(part.Headers.Value("content-disposition"))
	for key, value := range strutil.WalkKV(params) {
		switch {
		case strcomp.EqualFold(key, "name"):
			part.Name = value
		case strcomp.EqualFold(key, "filename"):
			part.Filename = value
		}
	}

	root := c.route.Site.ResourceRoot
	if c.body.eat || len(root) == 0 {
		return nil
	}

	if err := os.MkdirAll(root, 0o700); err != nil {
		return err
	}

	name, err := tempName()
	if err != nil {
		return err
	}

	part.Path = filepath.Join(root, name)
	file, err := os.OpenFile(part.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	c.body.partFile = file
	c.body.orphan = part.Path
	return nil
}

// dropOrphan removes the file of a part interrupted in the middle.
func (c *Connection) dropOrphan() {
	if err := c.closePart(); err != nil {
		c.log.Warn("closing resource file", "error", err)
	}

	if len(c.body.orphan) > 0 {
		if err := os.Remove(c.body.orphan); err != nil {
			c.log.Warn("removing incomplete resource", "path", c.body.orphan, "error", err)
		}

		c.body.orphan = ""
	}
}

func (c *Connection) closePart() error {
	file := c.body.partFile
	if file == nil {
		return nil
	}

	c.body.partFile = nil
	return file.Close()
}

// tempName is a hex MD5 digest of 16 random bytes.
func tempName() (string, error) {
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return "", err
	}

	digest := md5.Sum(seed[:])
	return string(hexconv.Append(make([]byte, 0, len(digest)*2), digest[:])), nil
}
