package http

import (
	"net"

	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/proto"
	"github.com/indigo-web/webcore/kv"
)

const (
	preallocHeaders = 10
	preallocCookies = 4
)

// RequestFrame is an incoming request. The same frame is reused across exchanges on a
// single keep-alive connection, so nothing of it may be retained after the handler
// returns unless copied.
type RequestFrame struct {
	Method  method.Method
	Version proto.Proto
	// URI is the decoded path part of the request target.
	URI string
	// Query is the raw query string, without the leading question mark.
	Query string
	// Path is the filesystem path the URI was resolved to, if the route serves files.
	Path     string
	Headers  *kv.Storage
	Cookies  *kv.Storage
	Params   *kv.Storage
	Content  ContentFrame
	User     string
	Token    string
	Captures []string
	Remote   net.Addr
}

func NewRequest() *RequestFrame {
	return &RequestFrame{
		Headers: kv.NewPrealloc(preallocHeaders),
		Cookies: kv.NewPrealloc(preallocCookies),
		Params:  kv.New(),
	}
}

// Host returns the Host header value.
func (r *RequestFrame) Host() string {
	return r.Headers.Value("host")
}

// Reset clears the frame for the next exchange. Remote is kept, as it belongs to the
// connection rather than to the exchange.
func (r *RequestFrame) Reset() {
	r.Method = method.Unknown
	r.Version = proto.Unknown
	r.URI = ""
	r.Query = ""
	r.Path = ""
	r.Headers.Clear()
	r.Cookies.Clear()
	r.Params.Clear()
	r.Content.Reset()
	r.User = ""
	r.Token = ""
	clear(r.Captures)
	r.Captures = r.Captures[:0]
}
