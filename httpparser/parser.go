// Package httpparser implements resumable byte-level parsers for HTTP/1.x message heads,
// chunked transfer-coding and multipart/form-data bodies.
//
// All the parsers operate on the caller's buffer and never allocate. Results are reported
// as integers: a non-negative number of bytes on success, Incomplete when more bytes are
// required or Malformed when the input can never become valid. Values are handed out via
// callbacks as sub-slices of the input buffer, so they must be copied if retained.
package httpparser

const (
	// Incomplete means the input ended before the grammar did. The caller must read more
	// bytes, append them to the buffer and call again.
	Incomplete = -2
	// Malformed means the input violates the grammar or a callback aborted parsing. It is
	// terminal for the current message.
	Malformed = -1
)

type (
	// DataCallback receives a value. Returning false aborts parsing with Malformed.
	DataCallback = func(value []byte) bool
	// EventCallback notifies about a structural event. Returning false aborts parsing.
	EventCallback = func() bool
)

// Parser is an exclusively owned, per-connection scratch object. It must never be shared
// between connections and must be Reset between messages.
type Parser struct {
	OnMethodValue   DataCallback
	OnPathValue     DataCallback
	OnQueryValue    DataCallback
	OnVersion       DataCallback
	OnStatusCode    DataCallback
	OnStatusMessage DataCallback
	// OnHeaderField is called with the header name. For continuation lines of obsolete
	// line folding it is called with an empty slice.
	//
	// Multipart part header names are always passed whole, one call per header.
	OnHeaderField DataCallback
	// OnHeaderValue is called with the header value. Multipart part values may arrive in
	// several pieces as well.
	OnHeaderValue   DataCallback
	OnResourceBegin EventCallback
	OnResourceEnd   EventCallback
	OnContentData   DataCallback

	chunked   chunkedDecoder
	multipart multipartParser
}

func New() *Parser {
	return new(Parser)
}

// Reset returns the parser to its initial state. Callbacks are kept.
func (p *Parser) Reset() {
	p.chunked = chunkedDecoder{}
	p.multipart.reset()
}

func emit(cb DataCallback, value []byte) bool {
	if cb == nil {
		return true
	}

	return cb(value)
}

func notify(cb EventCallback) bool {
	if cb == nil {
		return true
	}

	return cb()
}

// isToken marks tchar as per RFC 9110, 5.6.2.
var isToken = func() (table [256]bool) {
	for c := 'a'; c <= 'z'; c++ {
		table[c], table[c-'a'+'A'] = true, true
	}

	for c := '0'; c <= '9'; c++ {
		table[c] = true
	}

	for _, c := range "!#$%&'*+-.^_`|~" {
		table[c] = true
	}

	return table
}()
