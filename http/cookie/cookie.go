package cookie

import (
	"strings"

	"github.com/indigo-web/webcore/internal/strutil"
	"github.com/indigo-web/webcore/kv"
)

// Cookie is a response cookie. Expires is kept in its textual (IMF-fixdate) form and is
// omitted when empty.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  string
	SameSite SameSite
	Secure   bool
	HttpOnly bool
}

func New(name, value string) Cookie {
	return Cookie{Name: name, Value: value}
}

type Builder struct {
	cookie Cookie
}

// Build is a chainable constructor for cookies. A preferred way of instantiation
func Build(name, value string) Builder {
	return Builder{New(name, value)}
}

func (b Builder) Path(path string) Builder {
	b.cookie.Path = path
	return b
}

func (b Builder) Domain(domain string) Builder {
	b.cookie.Domain = domain
	return b
}

func (b Builder) Expires(expires string) Builder {
	b.cookie.Expires = expires
	return b
}

func (b Builder) SameSite(sameSite SameSite) Builder {
	b.cookie.SameSite = sameSite
	return b
}

func (b Builder) Secure(secure bool) Builder {
	b.cookie.Secure = secure
	return b
}

func (b Builder) HttpOnly(httpOnly bool) Builder {
	b.cookie.HttpOnly = httpOnly
	return b
}

// Cookie returns the built cookie instance
func (b Builder) Cookie() Cookie {
	return b.cookie
}

type SameSite = string

const (
	SameSiteLax    SameSite = "Lax"
	SameSiteStrict SameSite = "Strict"
	SameSiteNone   SameSite = "None"
)

// Append renders the cookie as a Set-Cookie header value.
func (c Cookie) Append(buff []byte) []byte {
	buff = append(buff, c.Name...)
	buff = append(buff, '=')
	buff = append(buff, c.Value...)

	if len(c.Path) > 0 {
		buff = append(buff, "; Path="...)
		buff = append(buff, c.Path...)
	}

	if len(c.Domain) > 0 {
		buff = append(buff, "; Domain="...)
		buff = append(buff, c.Domain...)
	}

	if len(c.Expires) > 0 {
		buff = append(buff, "; Expires="...)
		buff = append(buff, c.Expires...)
	}

	if len(c.SameSite) > 0 {
		buff = append(buff, "; SameSite="...)
		buff = append(buff, c.SameSite...)
	}

	if c.Secure {
		buff = append(buff, "; Secure"...)
	}

	if c.HttpOnly {
		buff = append(buff, "; HttpOnly"...)
	}

	return buff
}

func (c Cookie) String() string {
	return string(c.Append(nil))
}

// Parse fills the jar with pairs from a Cookie request header. Malformed pairs (without
// the equality sign) are skipped.
func Parse(jar *kv.Storage, header string) {
	for len(header) > 0 {
		var pair string
		pair, header, _ = strings.Cut(header, ";")
		key, value, found := strings.Cut(strutil.StripWS(pair), "=")
		if !found || len(key) == 0 {
			continue
		}

		jar.Add(key, strutil.Unquote(value))
	}
}
