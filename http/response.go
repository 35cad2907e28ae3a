package http

import (
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/webcore/http/cookie"
	"github.com/indigo-web/webcore/http/mime"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/kv"
	json "github.com/json-iterator/go"
)

const preallocRespHeaders = 7

// ResponseFrame is an outgoing response. Zero Status means it wasn't decided yet, so
// the one passed to Finish (or 200) is used.
type ResponseFrame struct {
	Status      status.Code
	Headers     *kv.Storage
	Cookies     []cookie.Cookie
	Content     ContentFrame
	ContentType mime.MIME
	// File names a path-backed body, streamed instead of Content when set.
	File *Resource
	// Error marks responses carrying an error. Its message travels in X-Error.
	Error   bool
	Message string
}

func NewResponse() *ResponseFrame {
	return &ResponseFrame{
		Headers: kv.NewPrealloc(preallocRespHeaders),
	}
}

// Code sets the response status code.
func (r *ResponseFrame) Code(code status.Code) *ResponseFrame {
	r.Status = code
	return r
}

// Header adds a header. Content-Type is kept apart, as the connection decides it.
func (r *ResponseFrame) Header(key, value string) *ResponseFrame {
	if strcomp.EqualFold(key, "content-type") {
		r.ContentType = value
		return r
	}

	r.Headers.Add(key, value)
	return r
}

// Cookie adds cookies. They'll be later rendered as a set of Set-Cookie headers
func (r *ResponseFrame) Cookie(cookies ...cookie.Cookie) *ResponseFrame {
	r.Cookies = append(r.Cookies, cookies...)
	return r
}

// String sets the response's body to the passed string
func (r *ResponseFrame) String(body string) *ResponseFrame {
	return r.Bytes([]byte(body))
}

// Bytes sets the response's body to passed slice WITHOUT COPYING. Changing
// the passed slice later will affect the response by itself
func (r *ResponseFrame) Bytes(body []byte) *ResponseFrame {
	r.Content.Set(body)
	return r
}

// Write implements io.Writer, appending to the body.
func (r *ResponseFrame) Write(b []byte) (n int, err error) {
	r.Content.Append(b)
	r.Content.Length = int64(len(r.Content.Data))
	r.Content.Limited = true
	return len(b), nil
}

// TryJSON serializes the model as the response body.
func (r *ResponseFrame) TryJSON(model any) (*ResponseFrame, error) {
	r.Content.Reset()
	r.Content.Data = nil
	stream := json.ConfigDefault.BorrowStream(r)
	stream.WriteVal(model)
	err := stream.Flush()
	json.ConfigDefault.ReturnStream(stream)
	r.ContentType = mime.JSON

	return r, err
}

// Attach sets a file-backed body.
func (r *ResponseFrame) Attach(path string) *ResponseFrame {
	r.File = &Resource{Path: path, Type: mime.ByExtension(path)}
	return r
}

// Fail marks the response as an erroneous one. The status is taken from the error if it
// is a status.HTTPError and wasn't set explicitly.
func (r *ResponseFrame) Fail(err error) *ResponseFrame {
	if err == nil {
		return r
	}

	r.Error = true
	r.Message = err.Error()
	if r.Status == 0 || r.Status < 400 {
		r.Status = status.CodeOf(err)
	}

	return r
}

func (r *ResponseFrame) Reset() {
	r.Status = 0
	r.Headers.Clear()
	clear(r.Cookies)
	r.Cookies = r.Cookies[:0]
	r.Content.Reset()
	r.Content.Data = nil
	r.ContentType = ""
	r.File = nil
	r.Error = false
	r.Message = ""
}
