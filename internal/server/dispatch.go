package server

import (
	"slices"
	"strings"

	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/status"
)

// dispatch serves the routed request: redirects, authorization, then either the route's
// callback or the static files fallback.
func (c *Connection) dispatch() error {
	route := c.route
	request := c.request
	response := c.response

	if len(route.Redirect) > 0 {
		response.Header("Location", route.Redirect)
		return c.Finish(route.RedirectCode)
	}

	if err := c.authorize(); err != nil {
		return err
	}

	if err := c.SetState(Authorized); err != nil {
		return err
	}

	if request.Method == method.TRACE {
		response.Header("Allow", allowHeader(route.Allowed()))
		return status.ErrMethodNotAllowed
	}

	if handler := route.Callback(request.Method); handler != nil {
		return handler(c)
	}

	allowed := route.Allowed()

	switch {
	case request.Method == method.OPTIONS:
		response.Header("Allow", allowHeader(allowed))
		return c.Finish(status.OK)
	case len(route.DocumentRoot) > 0 && slices.Contains(route.Methods, request.Method):
		return c.serveStatic()
	case len(allowed) == 1:
		// nothing but OPTIONS is served here
		return status.ErrNotFound
	default:
		response.Header("Allow", allowHeader(allowed))
		return status.ErrMethodNotAllowed
	}
}

func allowHeader(methods []method.Method) string {
	var b strings.Builder
	for i, m := range methods {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(m.String())
	}

	return b.String()
}
