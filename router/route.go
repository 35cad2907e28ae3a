package router

import (
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/kv"
	"github.com/indigo-web/webcore/session"
	"github.com/indigo-web/webcore/websocket"
)

// Handler processes a single exchange. Returned errors are rendered as error responses,
// unless the response was already sent.
type Handler func(x Exchange) error

// StreamCallback is called for every piece of the request body, with a nil chunk once the
// body is over.
type StreamCallback func(content *http.ContentFrame, chunk []byte) error

// ResourceCallback is called for every stored multipart part, and once again with nil after
// the last one.
type ResourceCallback func(res *http.Resource) error

// Exchange is a single request-response pair of a connection, as seen by handlers.
type Exchange interface {
	Request() *http.RequestFrame
	Response() *http.ResponseFrame
	Route() *RouteEntry
	Logger() *slog.Logger
	// Consume streams the body. When eat is set, the body framing is validated while the
	// data itself is discarded. Consume, Store and Skip are mutually exclusive.
	Consume(cb StreamCallback, eat bool) error
	// Store parses a multipart body, saving every part into memory or a temporary file.
	Store(cb ResourceCallback, eat bool) error
	// Skip discards the body.
	Skip() error
	// Finish sends the response. The optional code overrides the response status.
	Finish(code ...status.Code) error
	// Upgrade switches the connection to the WebSocket protocol.
	Upgrade(handler websocket.Handler, lifetime websocket.Lifetime) error
	// Session loads the visitor's session or creates a new one.
	Session() (*session.Session, error)
	// SaveSession writes the session down and sets the cookie carrying its id.
	SaveSession(sess *session.Session) error
}

// Auth protects a route. Basic maps user names to their bcrypt hashes; Bearer validates
// the token, returning the user it belongs to.
type Auth struct {
	Realm  string
	Basic  map[string]string
	Bearer func(token string) (user string, ok bool)
}

// Compression is the route's response compression policy.
type Compression struct {
	// Codings are content codings in order of preference. Empty disables compression.
	Codings []string
	// MinSize is the least body length worth compressing. Zero uses the server default.
	MinSize int64
}

// RouteEntry is a single route along with its settings. Settings are inherited from the
// route it was derived from, while callbacks never are.
type RouteEntry struct {
	Pattern string
	Regex   *regexp.Regexp
	// Level is the specificity of the route: routes with higher levels are tried first.
	Level     int
	Site      *SiteEntry
	Callbacks [method.Count + 1]Handler

	Auth        *Auth
	Compression Compression
	// ErrorFiles map status codes to files served instead of generated error pages.
	ErrorFiles map[status.Code]string
	// MimeTypes map file extensions, including the dot, to MIME types.
	MimeTypes  map[string]string
	IndexFiles []string
	ShowHidden bool
	Listing    bool
	// Redirect, if set, makes every request to the route be redirected.
	Redirect     string
	RedirectCode status.Code
	// Override replaces the request URI when resolving files.
	Override     string
	DocumentRoot string
	// CacheLimit caps the request body buffered in memory. Zero means the global limit.
	CacheLimit  int64
	CacheMaxAge time.Duration
	Headers     *kv.Storage
	KeepAlive   bool
	// Timeout overrides the connection read timeout.
	Timeout          time.Duration
	WebSocket        bool
	WebSocketTimeout time.Duration
	// Methods are served statically out of the DocumentRoot, when no callback is set.
	Methods []method.Method

	literal bool
}

func newRouteEntry(pattern string, site *SiteEntry) *RouteEntry {
	route := &RouteEntry{
		Site:         site,
		ErrorFiles:   make(map[status.Code]string),
		MimeTypes:    make(map[string]string),
		IndexFiles:   []string{"index.html"},
		RedirectCode: status.Found,
		Headers:      kv.New(),
		KeepAlive:    true,
		Methods:      []method.Method{method.GET, method.HEAD},
	}
	route.setPattern(pattern)

	return route
}

// derive copies every setting except callbacks.
func (r *RouteEntry) derive(pattern string) *RouteEntry {
	route := *r
	route.Callbacks = [method.Count + 1]Handler{}
	route.ErrorFiles = maps.Clone(r.ErrorFiles)
	route.MimeTypes = maps.Clone(r.MimeTypes)
	route.IndexFiles = slices.Clone(r.IndexFiles)
	route.Methods = slices.Clone(r.Methods)
	route.Headers = r.Headers.Clone()
	if r.Auth != nil {
		auth := *r.Auth
		auth.Basic = maps.Clone(r.Auth.Basic)
		route.Auth = &auth
	}

	route.Compression.Codings = slices.Clone(r.Compression.Codings)
	route.setPattern(pattern)

	return &route
}

// setPattern panics on malformed patterns, as they're always a programming mistake.
func (r *RouteEntry) setPattern(pattern string) {
	r.Pattern = pattern
	r.Regex = regexp.MustCompile("^(?:" + pattern + ")$")
	r.literal = regexp.QuoteMeta(pattern) == pattern
	r.Level = strings.Count(pattern, "/")
}

// Match tests the URI against the route, returning the captured groups.
func (r *RouteEntry) Match(uri string) (captures []string, ok bool) {
	if r.literal {
		return nil, uri == r.Pattern
	}

	submatches := r.Regex.FindStringSubmatch(uri)
	if submatches == nil {
		return nil, false
	}

	return submatches[1:], true
}

// IsLiteral tells whether the pattern has no regular expression syntax.
func (r *RouteEntry) IsLiteral() bool {
	return r.literal
}

// covers tells whether the pattern of the other route is textually matched by this one.
func (r *RouteEntry) covers(pattern string) bool {
	return strings.HasPrefix(pattern, r.Pattern) || r.Regex.MatchString(pattern)
}

func (r *RouteEntry) Handle(m method.Method, handler Handler) *RouteEntry {
	r.Callbacks[m] = handler
	return r
}

func (r *RouteEntry) Get(handler Handler) *RouteEntry {
	return r.Handle(method.GET, handler)
}

func (r *RouteEntry) Head(handler Handler) *RouteEntry {
	return r.Handle(method.HEAD, handler)
}

func (r *RouteEntry) Post(handler Handler) *RouteEntry {
	return r.Handle(method.POST, handler)
}

func (r *RouteEntry) Put(handler Handler) *RouteEntry {
	return r.Handle(method.PUT, handler)
}

func (r *RouteEntry) Delete(handler Handler) *RouteEntry {
	return r.Handle(method.DELETE, handler)
}

func (r *RouteEntry) Patch(handler Handler) *RouteEntry {
	return r.Handle(method.PATCH, handler)
}

func (r *RouteEntry) Options(handler Handler) *RouteEntry {
	return r.Handle(method.OPTIONS, handler)
}

// Callback returns the handler registered for the method. HEAD falls back to GET.
func (r *RouteEntry) Callback(m method.Method) Handler {
	if int(m) >= len(r.Callbacks) {
		return nil
	}

	if handler := r.Callbacks[m]; handler != nil || m != method.HEAD {
		return handler
	}

	return r.Callbacks[method.GET]
}

// Allowed returns all the methods the route responds to.
func (r *RouteEntry) Allowed() []method.Method {
	var allowed []method.Method
	for _, m := range method.List {
		switch {
		case m == method.OPTIONS, r.Callback(m) != nil:
		case r.DocumentRoot != "" && slices.Contains(r.Methods, m):
		default:
			continue
		}

		allowed = append(allowed, m)
	}

	return allowed
}

// Header adds a header sent with every response of the route.
func (r *RouteEntry) Header(key, value string) *RouteEntry {
	r.Headers.Add(key, value)
	return r
}

// Root sets the directory files are served from.
func (r *RouteEntry) Root(dir string) *RouteEntry {
	r.DocumentRoot = dir
	return r
}

// Compress enables compression with the codings given in preference order.
func (r *RouteEntry) Compress(codings ...string) *RouteEntry {
	r.Compression.Codings = codings
	return r
}

// Protect sets the authentication requirements.
func (r *RouteEntry) Protect(auth Auth) *RouteEntry {
	r.Auth = &auth
	return r
}

// RedirectTo makes the route redirect with the code, Found if none.
func (r *RouteEntry) RedirectTo(location string, code ...status.Code) *RouteEntry {
	r.Redirect = location
	if len(code) > 0 {
		r.RedirectCode = code[0]
	}

	return r
}

// ErrorFile serves the file instead of the generated error page for the code.
func (r *RouteEntry) ErrorFile(code status.Code, path string) *RouteEntry {
	r.ErrorFiles[code] = path
	return r
}

// Mime maps a file extension to the MIME type.
func (r *RouteEntry) Mime(ext, mime string) *RouteEntry {
	r.MimeTypes[ext] = mime
	return r
}

// AllowWebSocket permits upgrades on the route.
func (r *RouteEntry) AllowWebSocket(timeout time.Duration) *RouteEntry {
	r.WebSocket = true
	r.WebSocketTimeout = timeout
	return r
}
