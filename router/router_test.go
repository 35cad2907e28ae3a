package router

import (
	"testing"
	"time"

	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/http/status"
	"github.com/stretchr/testify/require"
)

func newRequest(host, uri string) *http.RequestFrame {
	request := http.NewRequest()
	request.URI = uri
	if len(host) > 0 {
		request.Headers.Add("Host", host)
	}

	return request
}

func nopHandler(Exchange) error {
	return nil
}

func TestConstructRoute(t *testing.T) {
	r := New()
	site := r.Site("example.com")
	api := site.Route("/api/.*")
	v1 := site.Route("/api/v1/.*")
	users := site.Route("/api/v1/users/([0-9]+)")
	static := site.Route("/static")
	wildcard := r.Site(Wildcard)
	r.Freeze()

	t.Run("most specific wins", func(t *testing.T) {
		require.Same(t, v1, ConstructRoute(r, newRequest("example.com", "/api/v1/anything")))
		require.Same(t, api, ConstructRoute(r, newRequest("example.com", "/api/v2/anything")))
	})

	t.Run("captures", func(t *testing.T) {
		request := newRequest("example.com", "/api/v1/users/42")
		require.Same(t, users, ConstructRoute(r, request))
		require.Equal(t, []string{"42"}, request.Captures)

		request = newRequest("example.com", "/static")
		request.Captures = []string{"stale"}
		require.Same(t, static, ConstructRoute(r, request))
		require.Empty(t, request.Captures)
	})

	t.Run("base fallback", func(t *testing.T) {
		require.Same(t, site.Base, ConstructRoute(r, newRequest("example.com", "/nothing/here")))
		require.Same(t, site.Base, ConstructRoute(r, newRequest("example.com", "/static/nested")))
	})

	t.Run("hosts", func(t *testing.T) {
		require.Same(t, v1, ConstructRoute(r, newRequest("WWW.Example.com:443", "/api/v1/x")))
		require.Same(t, v1, ConstructRoute(r, newRequest("example.com:8080", "/api/v1/x")))
		require.Same(t, wildcard.Base, ConstructRoute(r, newRequest("other.org", "/api/v1/x")))
		require.Same(t, wildcard.Base, ConstructRoute(r, newRequest("", "/")))

		noWildcard := New()
		noWildcard.Site("example.com")
		noWildcard.Freeze()
		require.Nil(t, ConstructRoute(noWildcard, newRequest("other.org", "/")))
	})
}

func TestGroups(t *testing.T) {
	r := New()
	site := r.Site("localhost")
	start := site.Group("/files", Start)
	images := start.Route("/.*\\.png")
	end := site.Group(".json", End)
	document := end.Route("/docs/(.+)")
	match := site.Group("admin", Match)
	admin := match.Route(".*")
	site.Route("/plain")
	r.Freeze()

	t.Run("start strips the literal", func(t *testing.T) {
		require.Same(t, images, ConstructRoute(r, newRequest("localhost", "/files/cat.png")))
		require.Same(t, site.Base, ConstructRoute(r, newRequest("localhost", "/cat.png")))
	})

	t.Run("end strips the literal", func(t *testing.T) {
		request := newRequest("localhost", "/docs/readme.json")
		require.Same(t, document, ConstructRoute(r, request))
		require.Equal(t, []string{"readme"}, request.Captures)
	})

	t.Run("match keeps the uri", func(t *testing.T) {
		require.Same(t, admin, ConstructRoute(r, newRequest("localhost", "/panel/admin/users")))
	})

	t.Run("groups are idempotent", func(t *testing.T) {
		require.Same(t, start, site.Group("/files", Start))
		require.Empty(t, site.Groups[len(site.Groups)-1].Match, "literal-less group goes last")
	})
}

func TestInheritance(t *testing.T) {
	r := New()
	site := r.Site("localhost")
	site.Base.Header("X-Site", "base")

	api := site.Route("/api").
		Header("X-Api", "yes").
		Compress("gzip").
		ErrorFile(status.NotFound, "404.html").
		Get(nopHandler)
	api.Timeout = time.Minute

	users := site.Route("/api/v1/users")
	require.Equal(t, time.Minute, users.Timeout)
	require.Equal(t, "yes", users.Headers.Value("X-Api"))
	require.Equal(t, "base", users.Headers.Value("X-Site"))
	require.Equal(t, []string{"gzip"}, users.Compression.Codings)
	require.Equal(t, "404.html", users.ErrorFiles[status.NotFound])
	require.Nil(t, users.Callback(method.GET), "callbacks are never inherited")

	t.Run("modifications don't leak", func(t *testing.T) {
		users.Header("X-Users", "1").ErrorFile(status.Forbidden, "403.html")
		require.False(t, api.Headers.Has("X-Users"))
		require.NotContains(t, api.ErrorFiles, status.Forbidden)
	})

	t.Run("no inheritance", func(t *testing.T) {
		fresh := site.Route("/api/v2", false)
		require.Zero(t, fresh.Timeout)
		require.False(t, fresh.Headers.Has("X-Api"))
		require.True(t, fresh.KeepAlive)
	})

	t.Run("groups inherit site-wide routes", func(t *testing.T) {
		grouped := site.Group("/static", Start).Route("/api/v1/assets")
		require.Equal(t, time.Minute, grouped.Timeout)
		require.Equal(t, "yes", grouped.Headers.Value("X-Api"))

		other := site.Group(".xml", End)
		other.Route("/api/v1").Header("X-Xml", "yes")
		feed := site.Group(".rss", End).Route("/api/v1/feed")
		require.False(t, feed.Headers.Has("X-Xml"), "other literal groups aren't looked into")
		require.Equal(t, "yes", feed.Headers.Value("X-Api"))
	})

	t.Run("idempotent", func(t *testing.T) {
		require.Same(t, api, site.Route("/api"))
		require.Same(t, site, r.Site("LOCALHOST"))
	})

	t.Run("frozen", func(t *testing.T) {
		r.Freeze()
		require.Panics(t, func() {
			site.Route("/late")
		})
		require.NotPanics(t, func() {
			site.Route("/api")
		})
	})
}

func TestRouteEntry(t *testing.T) {
	site := New().Site("localhost")
	route := site.Route("/").Get(nopHandler).Post(nopHandler)

	require.NotNil(t, route.Callback(method.HEAD), "HEAD falls back to GET")
	require.Nil(t, route.Callback(method.PUT))
	require.Equal(t, []method.Method{method.GET, method.HEAD, method.POST, method.OPTIONS}, route.Allowed())

	static := site.Route("/static/.*").Root("./static")
	require.Equal(t, []method.Method{method.GET, method.HEAD, method.OPTIONS}, static.Allowed())
	require.False(t, static.IsLiteral())
	require.True(t, route.IsLiteral())

	require.Panics(t, func() {
		site.Route("/broken(")
	})
}
