package server

import (
	"strconv"
	"strings"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/webcore/http/method"
	"github.com/indigo-web/webcore/internal/strutil"
)

// maxRanges caps the number of ranges in a single request. Requests asking for more are
// served in full.
const maxRanges = 16

// byteRange is an inclusive range of bytes.
type byteRange struct {
	start, end int64
}

func (b byteRange) length() int64 {
	return b.end - b.start + 1
}

func (b byteRange) contentRange(size int64) string {
	return "bytes " + strconv.FormatInt(b.start, 10) + "-" + strconv.FormatInt(b.end, 10) +
		"/" + strconv.FormatInt(size, 10)
}

// parseRanges parses the Range header against the body of the size. Malformed or
// unsupported headers are reported as not ok and must be ignored. An empty set of ranges
// along with ok means none of them is satisfiable.
func parseRanges(header string, size int64) (ranges []byteRange, ok bool) {
	unit, set, found := strings.Cut(header, "=")
	if !found || !strcomp.EqualFold(strutil.StripWS(unit), "bytes") {
		return nil, false
	}

	for _, spec := range strings.Split(set, ",") {
		spec = strutil.StripWS(spec)
		if len(spec) == 0 {
			continue
		}

		first, last, found := strings.Cut(spec, "-")
		if !found {
			return nil, false
		}

		var r byteRange
		if len(first) == 0 {
			suffix, err := strconv.ParseInt(last, 10, 64)
			if err != nil || suffix < 0 {
				return nil, false
			}

			if suffix == 0 || size == 0 {
				continue
			}

			r = byteRange{start: max(size-suffix, 0), end: size - 1}
		} else {
			start, err := strconv.ParseInt(first, 10, 64)
			if err != nil || start < 0 {
				return nil, false
			}

			end := size - 1
			if len(last) > 0 {
				if end, err = strconv.ParseInt(last, 10, 64); err != nil || end < start {
					return nil, false
				}
			}

			if start >= size {
				continue
			}

			r = byteRange{start: start, end: min(end, size-1)}
		}

		if ranges = append(ranges, r); len(ranges) > maxRanges {
			return nil, false
		}
	}

	return ranges, true
}

// rangeable tells whether the Range header must be considered.
func (c *Connection) rangeable() bool {
	request := c.request
	if request.Method != method.GET && request.Method != method.HEAD {
		return false
	}

	if !request.Headers.Has("range") {
		return false
	}

	ifRange, found := request.Headers.Get("if-range")
	if !found {
		return true
	}

	headers := c.response.Headers
	return ifRange == headers.Value("etag") || ifRange == headers.Value("last-modified")
}

// appendRangeHeads renders the part heads of a multipart/byteranges body. The closing
// delimiter goes last.
func appendRangeHeads(heads []string, ranges []byteRange, boundary, contentType string, size int64) []string {
	for _, r := range ranges {
		var b strings.Builder
		b.WriteString("\r\n--")
		b.WriteString(boundary)
		b.WriteString(crlf)
		if len(contentType) > 0 {
			b.WriteString("Content-Type: ")
			b.WriteString(contentType)
			b.WriteString(crlf)
		}

		b.WriteString("Content-Range: ")
		b.WriteString(r.contentRange(size))
		b.WriteString(crlf + crlf)
		heads = append(heads, b.String())
	}

	return append(heads, "\r\n--"+boundary+"--\r\n")
}

func multipartLength(heads []string, ranges []byteRange) (length int64) {
	for _, head := range heads {
		length += int64(len(head))
	}

	for _, r := range ranges {
		length += r.length()
	}

	return length
}

// transmitRanges sends the multipart/byteranges body. Heads are expected to be rendered
// already.
func (c *Connection) transmitRanges(src bodySource, ranges []byteRange) error {
	for i, r := range ranges {
		if err := c.write([]byte(c.rangeHeads[i])); err != nil {
			return err
		}

		if err := c.transmit(src, r.start, r.length()); err != nil {
			return err
		}
	}

	return c.write([]byte(c.rangeHeads[len(ranges)]))
}
