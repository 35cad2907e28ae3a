package httpparser

import (
	"io"
	"strings"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/webcore/http"
)

const boundaryLength = 32

// NewBoundary generates a random multipart boundary.
func NewBoundary() string {
	return "webcore-" + uniuri.NewLen(boundaryLength)
}

// MultipartContentType renders the Content-Type value for the boundary.
func MultipartContentType(boundary string) string {
	return "multipart/form-data; boundary=" + boundary
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// AppendPartHead renders the delimiter and headers of a part. The first part of a body
// isn't preceded by a line break.
func AppendPartHead(buf []byte, boundary string, res *http.Resource, first bool) []byte {
	if !first {
		buf = append(buf, '\r', '\n')
	}

	buf = append(buf, "--"...)
	buf = append(buf, boundary...)
	buf = append(buf, "\r\nContent-Disposition: form-data; name=\""...)
	buf = append(buf, quoteEscaper.Replace(res.Name)...)
	buf = append(buf, '"')

	if len(res.Filename) > 0 {
		buf = append(buf, "; filename=\""...)
		buf = append(buf, quoteEscaper.Replace(res.Filename)...)
		buf = append(buf, '"')
	}

	buf = append(buf, '\r', '\n')

	if len(res.Type) > 0 {
		buf = append(buf, "Content-Type: "...)
		buf = append(buf, res.Type...)
		buf = append(buf, '\r', '\n')
	}

	if res.Headers != nil {
		for key, value := range res.Headers.Pairs() {
			buf = append(buf, key...)
			buf = append(buf, ": "...)
			buf = append(buf, value...)
			buf = append(buf, '\r', '\n')
		}
	}

	return append(buf, '\r', '\n')
}

// AppendClosing renders the closing delimiter. empty tells whether no parts were written.
func AppendClosing(buf []byte, boundary string, empty bool) []byte {
	if !empty {
		buf = append(buf, '\r', '\n')
	}

	buf = append(buf, "--"...)
	buf = append(buf, boundary...)
	return append(buf, "--\r\n"...)
}

// MultipartWriter encodes parts into a multipart/form-data stream.
type MultipartWriter struct {
	w        io.Writer
	boundary string
	buff     []byte
	parts    int
}

func NewMultipartWriter(w io.Writer, boundary string) *MultipartWriter {
	return &MultipartWriter{
		w:        w,
		boundary: boundary,
	}
}

func (m *MultipartWriter) Boundary() string {
	return m.boundary
}

func (m *MultipartWriter) ContentType() string {
	return MultipartContentType(m.boundary)
}

// WritePart writes the part head followed by the content.
func (m *MultipartWriter) WritePart(res *http.Resource, content io.Reader) error {
	m.buff = AppendPartHead(m.buff[:0], m.boundary, res, m.parts == 0)
	m.parts++

	if _, err := m.w.Write(m.buff); err != nil {
		return err
	}

	_, err := io.Copy(m.w, content)
	return err
}

// Close writes the closing delimiter. The underlying writer isn't closed.
func (m *MultipartWriter) Close() error {
	m.buff = AppendClosing(m.buff[:0], m.boundary, m.parts == 0)
	_, err := m.w.Write(m.buff)
	return err
}
