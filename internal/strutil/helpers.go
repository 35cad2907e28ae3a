package strutil

import (
	"iter"
	"strings"

	"github.com/indigo-web/webcore/internal/hexconv"
)

func LStripWS(str string) string {
	for i := 0; i < len(str); i++ {
		switch str[i] {
		case ' ', '\t':
		default:
			return str[i:]
		}
	}

	return ""
}

func RStripWS(str string) string {
	for i := len(str); i > 0; i-- {
		switch str[i-1] {
		case ' ', '\t':
		default:
			return str[:i]
		}
	}

	return ""
}

func StripWS(str string) string {
	return RStripWS(LStripWS(str))
}

// CutHeader splits a header value into the value itself and its parameters, stripping
// whitespaces in between.
func CutHeader(header string) (value, params string) {
	sep := strings.IndexByte(header, ';')
	if sep == -1 {
		return StripWS(header), ""
	}

	return StripWS(header[:sep]), LStripWS(header[sep+1:])
}

func Unquote(str string) string {
	if len(str) > 1 && str[0] == '"' && str[len(str)-1] == '"' {
		return str[1 : len(str)-1]
	}

	return str
}

// WalkKV iterates over semicolon-separated key=value parameters, as met in Content-Type,
// Content-Disposition or Cookie headers. Values are unquoted, keys without values yield
// an empty value.
func WalkKV(data string) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for len(data) > 0 {
			var param string
			param, data, _ = strings.Cut(data, ";")
			param = StripWS(param)
			if len(param) == 0 {
				continue
			}

			key, value, _ := strings.Cut(param, "=")
			if !yield(StripWS(key), Unquote(StripWS(value))) {
				return
			}
		}
	}
}

// Tokens iterates over comma-separated list elements, stripping qualifiers (;q=...) and
// whitespaces.
func Tokens(value string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for len(value) > 0 {
			var token string
			token, value, _ = strings.Cut(value, ",")
			token, _ = CutHeader(token)
			if len(token) == 0 {
				continue
			}

			if !yield(token) {
				return
			}
		}
	}
}

// ContainsToken reports whether a comma-separated list contains the token, case-insensitively.
func ContainsToken(value, token string) bool {
	for t := range Tokens(value) {
		if strings.EqualFold(t, token) {
			return true
		}
	}

	return false
}

// URLDecode decodes an urlencoded string and tells whether the string was properly formed.
func URLDecode(str string) (string, bool) {
	if strings.IndexByte(str, '%') == -1 {
		return str, true
	}

	var b strings.Builder
	b.Grow(len(str))
	s := str

	for len(s) > 0 {
		percent := strings.IndexByte(s, '%')
		if percent == -1 {
			break
		}

		b.WriteString(s[:percent])
		s = s[percent+1:]
		if len(s) < 2 {
			return "", false
		}

		x, y := hexconv.Halfbyte[s[0]], hexconv.Halfbyte[s[1]]
		if x|y == 0xFF {
			return "", false
		}

		b.WriteByte((x << 4) | y)
		s = s[2:]
	}

	b.WriteString(s)

	return b.String(), true
}

var unreserved = func() (table [256]bool) {
	for c := 'a'; c <= 'z'; c++ {
		table[c], table[c-'a'+'A'] = true, true
	}

	for c := '0'; c <= '9'; c++ {
		table[c] = true
	}

	for _, c := range "-_.~/" {
		table[c] = true
	}

	return table
}()

// URLEncode percent-encodes everything but unreserved characters and slashes.
func URLEncode(str string) string {
	const digits = "0123456789ABCDEF"
	var b strings.Builder

	for i := 0; i < len(str); i++ {
		c := str[i]
		if unreserved[c] {
			b.WriteByte(c)
			continue
		}

		b.WriteByte('%')
		b.WriteByte(digits[c>>4])
		b.WriteByte(digits[c&0xF])
	}

	return b.String()
}
