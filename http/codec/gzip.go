package codec

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

func NewGZIP() Codec {
	instantiator := newBaseInstance(
		func() writeResetter {
			return gzip.NewWriter(nil)
		},
		func(src io.Reader) (io.Reader, error) {
			return gzip.NewReader(src)
		},
		func(r io.Reader, src io.Reader) error {
			return r.(*gzip.Reader).Reset(src)
		},
	)

	return newBaseCodec("gzip", instantiator)
}
