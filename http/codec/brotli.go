package codec

import (
	"io"

	"github.com/andybalholm/brotli"
)

func NewBrotli() Codec {
	instantiator := newBaseInstance(
		func() writeResetter {
			return brotli.NewWriterLevel(nil, brotli.DefaultCompression)
		},
		func(src io.Reader) (io.Reader, error) {
			return brotli.NewReader(src), nil
		},
		func(r io.Reader, src io.Reader) error {
			return r.(*brotli.Reader).Reset(src)
		},
	)

	return newBaseCodec("br", instantiator)
}
