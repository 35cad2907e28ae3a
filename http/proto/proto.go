package proto

import "github.com/indigo-web/utils/uf"

type Proto uint8

const (
	Unknown Proto = 0
	HTTP10  Proto = 1 << iota
	HTTP11

	HTTP1 = HTTP10 | HTTP11
)

// String returns protocol as a string WITH A TRAILING SPACE
func (p Proto) String() string {
	switch p {
	case HTTP10:
		return "HTTP/1.0 "
	case HTTP11:
		return "HTTP/1.1 "
	default:
		return ""
	}
}

// Token returns the protocol name as met on the wire.
func (p Proto) Token() string {
	str := p.String()
	if len(str) == 0 {
		return ""
	}

	return str[:len(str)-1]
}

const (
	protoTokenLength   = len("HTTP/x.x")
	majorVersionOffset = len("HTTP/x") - 1
	minorVersionOffset = len("HTTP/x.x") - 1
	httpScheme         = "HTTP/"
)

// FromBytes recognizes HTTP/1.0 and HTTP/1.1 tokens. Other well-formed versions as well as
// garbage result in Unknown.
func FromBytes(raw []byte) Proto {
	if len(raw) != protoTokenLength || uf.B2S(raw[:majorVersionOffset]) != httpScheme ||
		raw[majorVersionOffset+1] != '.' {
		return Unknown
	}

	if raw[majorVersionOffset] != '1' {
		return Unknown
	}

	switch raw[minorVersionOffset] {
	case '0':
		return HTTP10
	case '1':
		return HTTP11
	default:
		return Unknown
	}
}
