package mime

import (
	"path/filepath"
	"strings"

	"github.com/indigo-web/webcore/internal/strutil"
)

type MIME = string

const (
	OctetStream    MIME = "application/octet-stream"
	Plain          MIME = "text/plain"
	HTML           MIME = "text/html"
	XML            MIME = "text/xml"
	JSON           MIME = "application/json"
	YAML           MIME = "application/yaml"
	PDF            MIME = "application/pdf"
	FormUrlencoded MIME = "application/x-www-form-urlencoded"
	Multipart      MIME = "multipart/form-data"
	ByteRanges     MIME = "multipart/byteranges"
	ZIP            MIME = "application/zip"
	GZIP           MIME = "application/gzip"
	AVIF           MIME = "image/avif"
	CSS            MIME = "text/css"
	GIF            MIME = "image/gif"
	JPEG           MIME = "image/jpeg"
	PNG            MIME = "image/png"
	SVG            MIME = "image/svg+xml"
	ICO            MIME = "image/vnd.microsoft.icon"
	WEBP           MIME = "image/webp"
	JS             MIME = "text/javascript"
	WASM           MIME = "application/wasm"
	MP4            MIME = "video/mp4"
	WEBM           MIME = "video/webm"
	MP3            MIME = "audio/mpeg"
	WOFF2          MIME = "font/woff2"
)

var extensions = map[string]MIME{
	"html":  HTML,
	"htm":   HTML,
	"txt":   Plain,
	"xml":   XML,
	"json":  JSON,
	"yaml":  YAML,
	"yml":   YAML,
	"pdf":   PDF,
	"zip":   ZIP,
	"gz":    GZIP,
	"avif":  AVIF,
	"css":   CSS,
	"gif":   GIF,
	"jpg":   JPEG,
	"jpeg":  JPEG,
	"png":   PNG,
	"svg":   SVG,
	"ico":   ICO,
	"webp":  WEBP,
	"js":    JS,
	"mjs":   JS,
	"wasm":  WASM,
	"mp4":   MP4,
	"webm":  WEBM,
	"mp3":   MP3,
	"woff2": WOFF2,
}

// ByExtension guesses the MIME of a file by its extension. Unknown extensions yield
// OctetStream.
func ByExtension(filename string) MIME {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if mime, ok := extensions[strings.ToLower(ext)]; ok {
		return mime
	}

	return OctetStream
}

// Textual tells whether the MIME is worth compressing.
func Textual(mime MIME) bool {
	mime, _ = strutil.CutHeader(mime)
	switch mime {
	case HTML, Plain, XML, JSON, YAML, CSS, JS, SVG, WASM:
		return true
	default:
		return strings.HasPrefix(mime, "text/")
	}
}

// Complies returns whether two MIMEs are compatible. Empty MIME is
// considered compatible with any other MIME
func Complies(mime MIME, with string) bool {
	with, _ = strutil.CutHeader(with)
	return len(with) == 0 || with == mime
}
