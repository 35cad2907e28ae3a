// Package router maps requests to routes: host names select sites, sites bucket their
// routes into groups, and groups hold routes ordered by specificity.
package router

import (
	"fmt"
	"slices"
	"strings"

	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/router/internal/domain"
	"github.com/indigo-web/webcore/session"
)

// Wildcard is the site serving requests of hosts without a site of their own.
const Wildcard = "*"

// MapRouter maps host names onto sites. It must not be modified after Freeze, and lookups
// must not happen before it.
type MapRouter struct {
	sites  map[string]*SiteEntry
	frozen bool
}

func New() *MapRouter {
	return &MapRouter{
		sites: make(map[string]*SiteEntry),
	}
}

// Site returns the site of the host, creating it if needed.
func (m *MapRouter) Site(host string) *SiteEntry {
	if host != Wildcard {
		host = domain.Normalize(host)
	}

	if site, found := m.sites[host]; found {
		return site
	}

	m.mustNotBeFrozen()
	site := newSiteEntry(host, m)
	m.sites[host] = site

	return site
}

// Lookup finds the site by the Host header value: first exactly, then without the port,
// and finally the wildcard site. Nil is returned if none matches.
func (m *MapRouter) Lookup(host string) *SiteEntry {
	host = domain.Normalize(host)
	if site, found := m.sites[host]; found {
		return site
	}

	if site, found := m.sites[domain.TrimPort(host)]; found {
		return site
	}

	return m.sites[Wildcard]
}

// Sites returns all the declared sites.
func (m *MapRouter) Sites() []*SiteEntry {
	sites := make([]*SiteEntry, 0, len(m.sites))
	for _, site := range m.sites {
		sites = append(sites, site)
	}

	slices.SortFunc(sites, func(a, b *SiteEntry) int {
		return strings.Compare(a.Host, b.Host)
	})

	return sites
}

// Freeze sorts everything once more and forbids any further modifications.
func (m *MapRouter) Freeze() {
	for _, site := range m.sites {
		site.sortGroups()
		for _, group := range site.Groups {
			group.sortRoutes()
		}
	}

	m.frozen = true
}

func (m *MapRouter) Frozen() bool {
	return m.frozen
}

func (m *MapRouter) mustNotBeFrozen() {
	if m.frozen {
		panic("router: modification after the server has started")
	}
}

// SiteEntry is a virtual host. It always has the Base route, which is used when no other
// route matches and which all other routes are derived from by default.
type SiteEntry struct {
	Host   string
	Base   *RouteEntry
	Groups []*RouteGroup
	// SessionRoot is a directory sessions are stored in. Sessions are kept in memory
	// if empty.
	SessionRoot string
	// ResourceRoot is a directory multipart parts are stored in. They're kept in memory
	// if empty.
	ResourceRoot string
	Sessions     *session.Store

	router *MapRouter
}

func newSiteEntry(host string, router *MapRouter) *SiteEntry {
	site := &SiteEntry{Host: host, router: router}
	site.Base = newRouteEntry("/", site)

	return site
}

// Route registers the pattern in the group without a literal.
func (s *SiteEntry) Route(pattern string, inherit ...bool) *RouteEntry {
	return s.Group("", Start).Route(pattern, inherit...)
}

// Group returns the group, creating it if needed.
func (s *SiteEntry) Group(match string, mode RouteMode) *RouteGroup {
	for _, group := range s.Groups {
		if group.Match == match && group.Mode == mode {
			return group
		}
	}

	s.router.mustNotBeFrozen()
	group := &RouteGroup{Match: match, Mode: mode, site: s}
	s.Groups = append(s.Groups, group)
	s.sortGroups()

	return group
}

// sortGroups places groups with longer literals first, and the literal-less one last.
func (s *SiteEntry) sortGroups() {
	slices.SortStableFunc(s.Groups, func(a, b *RouteGroup) int {
		return len(b.Match) - len(a.Match)
	})
}

type RouteMode uint8

const (
	// Start matches URIs prefixed with the literal, which is stripped before routes are tried.
	Start RouteMode = iota
	// Match matches URIs containing the literal. The URI is left intact.
	Match
	// End matches URIs suffixed with the literal, which is stripped before routes are tried.
	End
)

func (r RouteMode) String() string {
	switch r {
	case Start:
		return "start"
	case Match:
		return "match"
	case End:
		return "end"
	default:
		return fmt.Sprintf("RouteMode(%d)", uint8(r))
	}
}

// RouteGroup buckets routes behind a literal, which lets most of the groups be rejected
// without a single regular expression being run.
type RouteGroup struct {
	Match  string
	Mode   RouteMode
	Routes []*RouteEntry
	site   *SiteEntry
}

// Route registers the pattern. Unless inherit is false, the route inherits the settings
// of the most specific route declared before whose pattern covers the new one, or of the
// site's Base. Registering the same pattern again returns the existing route.
func (g *RouteGroup) Route(pattern string, inherit ...bool) *RouteEntry {
	for _, route := range g.Routes {
		if route.Pattern == pattern {
			return route
		}
	}

	g.site.router.mustNotBeFrozen()

	var route *RouteEntry
	if len(inherit) == 0 || inherit[0] {
		route = g.ancestor(pattern).derive(pattern)
	} else {
		route = newRouteEntry(pattern, g.site)
	}

	g.Routes = append(g.Routes, route)
	g.sortRoutes()

	return route
}

// ancestor looks through the group itself and then the site-wide routes. Other literal
// groups are skipped, as their patterns are relative to their own literals.
func (g *RouteGroup) ancestor(pattern string) *RouteEntry {
	var best *RouteEntry
	lookup := func(routes []*RouteEntry) {
		for _, route := range routes {
			if route.covers(pattern) && (best == nil || len(route.Pattern) > len(best.Pattern)) {
				best = route
			}
		}
	}

	lookup(g.Routes)
	if len(g.Match) > 0 {
		for _, group := range g.site.Groups {
			if len(group.Match) == 0 {
				lookup(group.Routes)
			}
		}
	}

	if best == nil {
		return g.site.Base
	}

	return best
}

// accept checks the literal, returning the URI the routes must be tested against.
func (g *RouteGroup) accept(uri string) (string, bool) {
	if len(g.Match) == 0 {
		return uri, true
	}

	switch g.Mode {
	case Start:
		if strings.HasPrefix(uri, g.Match) {
			return uri[len(g.Match):], true
		}
	case End:
		if strings.HasSuffix(uri, g.Match) {
			return uri[:len(uri)-len(g.Match)], true
		}
	case Match:
		if strings.Contains(uri, g.Match) {
			return uri, true
		}
	}

	return "", false
}

// sortRoutes orders routes by level descending, literal ones before regular expressions,
// longer patterns before shorter ones.
func (g *RouteGroup) sortRoutes() {
	slices.SortStableFunc(g.Routes, func(a, b *RouteEntry) int {
		switch {
		case a.Level != b.Level:
			return b.Level - a.Level
		case a.literal != b.literal:
			if a.literal {
				return -1
			}

			return 1
		default:
			return len(b.Pattern) - len(a.Pattern)
		}
	})
}

// ConstructRoute finds the route the request must be served by, storing the captured
// groups into the request. Nil is returned only if there is no site for the host at all.
func ConstructRoute(m *MapRouter, request *http.RequestFrame) *RouteEntry {
	site := m.Lookup(request.Host())
	if site == nil {
		return nil
	}

	for _, group := range site.Groups {
		uri, ok := group.accept(request.URI)
		if !ok {
			continue
		}

		for _, route := range group.Routes {
			if captures, matched := route.Match(uri); matched {
				request.Captures = append(request.Captures[:0], captures...)
				return route
			}
		}
	}

	request.Captures = request.Captures[:0]
	return site.Base
}
