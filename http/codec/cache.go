package codec

import (
	"strconv"
	"strings"

	"github.com/indigo-web/webcore/internal/strutil"
)

// Cache lazily instantiates codecs, so every connection allocates only the codecs it
// actually uses.
type Cache struct {
	accept    string
	codecs    []Codec
	instances []Instance
}

func NewCache(codecs []Codec) *Cache {
	return &Cache{
		accept:    AcceptEncoding(codecs),
		codecs:    codecs,
		instances: make([]Instance, len(codecs)),
	}
}

func (c *Cache) find(token string) (int, Codec) {
	for i, entry := range c.codecs {
		if strings.EqualFold(entry.Token(), token) {
			return i, entry
		}
	}

	return -1, nil
}

// Get returns the instance of the codec, or nil if the coding isn't supported.
func (c *Cache) Get(token string) Instance {
	idx, cd := c.find(token)
	if idx == -1 {
		return nil
	}

	inst := c.instances[idx]
	if inst == nil {
		inst = cd.New()
		c.instances[idx] = inst
	}

	return inst
}

// Negotiate picks the first of preferred codings the client accepts and the cache
// supports. An empty string means the body must be sent as is.
func (c *Cache) Negotiate(acceptEncoding string, preferred []string) string {
	for _, token := range preferred {
		if idx, _ := c.find(token); idx != -1 && Accepts(acceptEncoding, token) {
			return token
		}
	}

	return ""
}

// AcceptEncoding returns the value of the Accept-Encoding header listing all the codecs.
func (c *Cache) AcceptEncoding() string {
	return c.accept
}

func AcceptEncoding(codecs []Codec) string {
	if len(codecs) == 0 {
		return "identity"
	}

	var b strings.Builder

	b.WriteString(codecs[0].Token())
	for _, c := range codecs[1:] {
		b.WriteString(", ")
		b.WriteString(c.Token())
	}

	return b.String()
}

// Accepts tells whether the Accept-Encoding value permits the coding, either explicitly or
// via the asterisk. Codings with zero quality are rejected.
func Accepts(acceptEncoding, token string) bool {
	wildcard := false

	for len(acceptEncoding) > 0 {
		var entry string
		entry, acceptEncoding, _ = strings.Cut(acceptEncoding, ",")
		coding, params := strutil.CutHeader(entry)

		accepted := true
		for key, value := range strutil.WalkKV(params) {
			if key == "q" {
				q, err := strconv.ParseFloat(value, 64)
				accepted = err == nil && q > 0
			}
		}

		switch {
		case strings.EqualFold(coding, token):
			return accepted
		case coding == "*":
			wildcard = accepted
		}
	}

	return wildcard
}
