package server

import (
	"cmp"
	"html"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/indigo-web/webcore/http/mime"
	"github.com/indigo-web/webcore/http/status"
	"github.com/indigo-web/webcore/internal/strutil"
)

// serveStatic serves the file the URI maps to. Directories are served by their index files
// or listed, if the route allows so.
func (c *Connection) serveStatic() error {
	route := c.route
	request := c.request

	filePath, err := resolve(route, request.URI)
	if err != nil {
		return err
	}

	request.Path = filePath
	stat, err := os.Stat(filePath)
	if err != nil {
		return fileError(err)
	}

	if !stat.IsDir() {
		return c.serveFile(filePath, stat)
	}

	if len(route.Override) == 0 && !strings.HasSuffix(request.URI, "/") {
		location := strutil.URLEncode(request.URI) + "/"
		if len(request.Query) > 0 {
			location += "?" + request.Query
		}

		c.response.Header("Location", location)
		return c.Finish(status.MovedPermanently)
	}

	for _, index := range route.IndexFiles {
		indexPath := filepath.Join(filePath, index)
		if indexStat, err := os.Stat(indexPath); err == nil && indexStat.Mode().IsRegular() {
			request.Path = indexPath
			return c.serveFile(indexPath, indexStat)
		}
	}

	if !route.Listing {
		return status.ErrForbidden
	}

	return c.listDirectory(filePath)
}

// listDirectory renders an HTML index of the directory, directories first.
func (c *Connection) listDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fileError(err)
	}

	if !c.route.ShowHidden {
		entries = slices.DeleteFunc(entries, func(entry os.DirEntry) bool {
			return strings.HasPrefix(entry.Name(), ".")
		})
	}

	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}

			return 1
		}

		return cmp.Compare(a.Name(), b.Name())
	})

	title := html.EscapeString(c.request.URI)
	page := make([]byte, 0, 512)
	page = append(page, "<!DOCTYPE html>\n<html>\n<head><title>Index of "...)
	page = append(page, title...)
	page = append(page, "</title></head>\n<body>\n<h1>Index of "...)
	page = append(page, title...)
	page = append(page, "</h1>\n<ul>\n"...)
	if c.request.URI != "/" {
		page = append(page, "<li><a href=\"../\">../</a></li>\n"...)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}

		page = append(page, "<li><a href=\""...)
		page = append(page, strutil.URLEncode(name)...)
		page = append(page, "\">"...)
		page = append(page, html.EscapeString(name)...)
		page = append(page, "</a>"...)
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			page = append(page, " ("...)
			page = strconv.AppendInt(page, info.Size(), 10)
			page = append(page, " bytes)"...)
		}

		page = append(page, "</li>\n"...)
	}

	page = append(page, "</ul>\n</body>\n</html>\n"...)

	response := c.response
	response.ContentType = mime.HTML + "; charset=utf-8"
	response.Bytes(page)
	return c.Finish(status.OK)
}
