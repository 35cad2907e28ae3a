package server

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/indigo-web/webcore/http/mime"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/router"
)

// resolve maps the request URI onto the route's document root. The Override replaces the
// URI if set. The resulting path never escapes the root.
func resolve(route *router.RouteEntry, uri string) (string, error) {
	if len(route.Override) > 0 {
		uri = route.Override
	}

	if strings.IndexByte(uri, 0) != -1 || strings.IndexByte(uri, '\\') != -1 {
		return "", status.ErrBadRequest
	}

	clean := path.Clean("/" + uri)
	if !route.ShowHidden && hidden(clean) {
		return "", status.ErrNotFound
	}

	return filepath.Join(route.DocumentRoot, filepath.FromSlash(clean)), nil
}

// hidden tells whether any segment of the path is a dotfile.
func hidden(cleanPath string) bool {
	for _, segment := range strings.Split(cleanPath, "/") {
		if len(segment) > 0 && segment[0] == '.' {
			return true
		}
	}

	return false
}

// mimeOf prefers the route's MIME overrides over the built-in ones.
func mimeOf(route *router.RouteEntry, filename string) mime.MIME {
	if route != nil {
		if m, ok := route.MimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
			return m
		}
	}

	return mime.ByExtension(filename)
}
