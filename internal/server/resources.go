package server

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/indigo-web/webcore/http"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/internal/strutil"
	"github.com/indigo-web/webcore/internal/timer"
)

// serveFile responds with the file, honoring conditional requests and the route's caching
// policy. Ranges are resolved later, while the response is composed.
func (c *Connection) serveFile(filePath string, stat os.FileInfo) error {
	route := c.route
	response := c.response
	headers := c.request.Headers

	etag := entityTag(stat)
	modified := stat.ModTime().UTC().Truncate(time.Second)
	lastModified := modified.Format(timer.DateLayout)

	response.Header("ETag", etag)
	response.Header("Last-Modified", lastModified)
	response.Header("Accept-Ranges", "bytes")
	if route.CacheMaxAge > 0 {
		response.Header("Cache-Control", "max-age="+strconv.Itoa(int(route.CacheMaxAge.Seconds())))
	}

	if match, found := headers.Get("if-none-match"); found {
		if matchesETag(match, etag) {
			return c.Finish(status.NotModified)
		}
	} else if since, found := headers.Get("if-modified-since"); found {
		if t, err := time.Parse(timer.DateLayout, since); err == nil && !modified.After(t) {
			return c.Finish(status.NotModified)
		}
	}

	response.File = &http.Resource{
		Path:   filePath,
		Name:   stat.Name(),
		Type:   mimeOf(route, filePath),
		Length: stat.Size(),
	}

	return c.Finish(status.OK)
}

// entityTag is a weak-free validator built of the modification time and the size.
func entityTag(stat os.FileInfo) string {
	return `"` + strconv.FormatInt(stat.ModTime().UnixNano(), 16) + "-" +
		strconv.FormatInt(stat.Size(), 16) + `"`
}

// matchesETag compares with weak comparison, as If-None-Match requires.
func matchesETag(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strutil.StripWS(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}

	return false
}
