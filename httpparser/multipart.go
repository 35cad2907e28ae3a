package httpparser

import "bytes"

type multipartState uint8

const (
	mpStart multipartState = iota
	mpStartBoundary
	mpHeaderFieldStart
	mpHeaderField
	mpHeaderFieldWaiting
	mpHeaderValueStart
	mpHeaderValue
	mpHeaderValueWaiting
	mpResourceStart
	mpResource
	mpResourceBoundary
	mpResourceBoundaryWaiting
	mpResourceHyphen
	mpResourceEnd
	mpEnd
)

// maxBoundaryLength is the RFC 2046 limit plus the leading dashes.
const maxBoundaryLength = 70 + 2

const maxPartFieldLength = 256

type multipartParser struct {
	state multipartState
	index int
	// boundary is the delimiter with its leading dashes.
	boundary   [maxBoundaryLength]byte
	boundLen   int
	lookbehind [maxBoundaryLength + 2]byte
	// field keeps the beginning of a part header name split between buffers.
	field    [maxPartFieldLength]byte
	fieldLen int
}

func (m *multipartParser) reset() {
	m.state = mpStart
	m.index = 0
	m.boundLen = 0
	m.fieldLen = 0
}

// bufferField appends a piece of the part header name.
func (m *multipartParser) bufferField(piece []byte) bool {
	if m.fieldLen+len(piece) > len(m.field) {
		return false
	}

	m.fieldLen += copy(m.field[m.fieldLen:], piece)
	return true
}

// rematch returns how much of the boundary is matched after a mismatching byte: the
// longest suffix of the matched text followed by c that is a boundary prefix.
func (m *multipartParser) rematch(c byte) int {
	for n := m.index; n > 0; n-- {
		if m.boundary[n-1] == c && bytes.Equal(m.boundary[:n-1], m.boundary[m.index-n+1:m.index]) {
			return n
		}
	}

	return 0
}

// MultipartDone reports whether the closing delimiter was met.
func (p *Parser) MultipartDone() bool {
	return p.multipart.state == mpEnd
}

// MultipartParse feeds buf[:length] of a multipart body delimited by boundary (as found in
// the Content-Type parameter, without leading dashes). Parsing is resumable: the boundary
// index and the look-behind buffer persist between calls, so the body may be split at any
// byte. Bytes preceding the first delimiter are a preamble and are ignored. Every part
// header name is passed to OnHeaderField once and whole, whereas header values and content
// are passed to OnHeaderValue and OnContentData, possibly in several pieces. A part header
// with an empty value doesn't produce the OnHeaderValue call at all.
//
// Returns the number of consumed bytes (always length) or Malformed.
func (p *Parser) MultipartParse(boundary string, buf []byte, length int) int {
	m := &p.multipart
	buf = buf[:length]
	mark := 0

	for i := 0; i < len(buf); i++ {
		c := buf[i]
		isLast := i == len(buf)-1

		switch m.state {
		case mpStart:
			if len(boundary) == 0 || len(boundary)+2 > maxBoundaryLength {
				return Malformed
			}

			m.boundary[0], m.boundary[1] = '-', '-'
			m.boundLen = 2 + copy(m.boundary[2:], boundary)
			m.index = 0
			m.state = mpStartBoundary
			fallthrough
		case mpStartBoundary:
			switch {
			case m.index == m.boundLen:
				switch c {
				case '\r':
					m.index++
				case '-':
					// the body has no parts at all
					m.state = mpResourceHyphen
				default:
					return Malformed
				}
			case m.index == m.boundLen+1:
				if c != '\n' {
					return Malformed
				}

				m.index = 0
				if !notify(p.OnResourceBegin) {
					return Malformed
				}

				m.state = mpHeaderFieldStart
			case c != m.boundary[m.index]:
				m.index = m.rematch(c)
			default:
				m.index++
			}
		case mpHeaderFieldStart:
			mark = i
			m.fieldLen = 0
			m.state = mpHeaderField
			fallthrough
		case mpHeaderField:
			switch {
			case c == '\r':
				m.fieldLen = 0
				m.state = mpHeaderFieldWaiting
			case c == ':':
				if !m.bufferField(buf[mark:i]) || !emit(p.OnHeaderField, m.field[:m.fieldLen]) {
					return Malformed
				}

				m.fieldLen = 0
				m.state = mpHeaderValueStart
			case !isToken[c]:
				return Malformed
			case isLast:
				if !m.bufferField(buf[mark:i+1]) {
					return Malformed
				}
			}
		case mpHeaderFieldWaiting:
			if c != '\n' {
				return Malformed
			}

			m.state = mpResourceStart
		case mpHeaderValueStart:
			if c == ' ' || c == '\t' {
				break
			}

			mark = i
			m.state = mpHeaderValue
			fallthrough
		case mpHeaderValue:
			if c == '\r' {
				if i > mark && !emit(p.OnHeaderValue, buf[mark:i]) {
					return Malformed
				}

				m.state = mpHeaderValueWaiting
				break
			}

			if isLast && !emit(p.OnHeaderValue, buf[mark:i+1]) {
				return Malformed
			}
		case mpHeaderValueWaiting:
			if c != '\n' {
				return Malformed
			}

			m.state = mpHeaderFieldStart
		case mpResourceStart:
			mark = i
			m.state = mpResource
			fallthrough
		case mpResource:
			if c == '\r' {
				if i > mark && !emit(p.OnContentData, buf[mark:i]) {
					return Malformed
				}

				m.lookbehind[0] = '\r'
				m.state = mpResourceBoundaryWaiting
				break
			}

			if isLast && !emit(p.OnContentData, buf[mark:i+1]) {
				return Malformed
			}
		case mpResourceBoundaryWaiting:
			if c == '\n' {
				m.lookbehind[1] = '\n'
				m.index = 0
				m.state = mpResourceBoundary
				break
			}

			if !emit(p.OnContentData, m.lookbehind[:1]) {
				return Malformed
			}

			// the byte may start the content again, e.g. another CR
			mark = i
			m.state = mpResource
			i--
		case mpResourceBoundary:
			if m.boundary[m.index] != c {
				if !emit(p.OnContentData, m.lookbehind[:2+m.index]) {
					return Malformed
				}

				mark = i
				m.state = mpResource
				i--
				break
			}

			m.lookbehind[2+m.index] = c
			if m.index++; m.index == m.boundLen {
				if !notify(p.OnResourceEnd) {
					return Malformed
				}

				m.state = mpResourceEnd
			}
		case mpResourceEnd:
			switch c {
			case '-':
				m.state = mpResourceHyphen
			case '\r':
				// the LF is checked by the boundary state, which also begins the next part
				m.index = m.boundLen + 1
				m.state = mpStartBoundary
			default:
				return Malformed
			}
		case mpResourceHyphen:
			if c != '-' {
				return Malformed
			}

			m.state = mpEnd
		case mpEnd:
			// epilogue is ignored
			return length
		}
	}

	return length
}
