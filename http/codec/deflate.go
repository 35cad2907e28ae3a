package codec

import (
	"io"

	"github.com/klauspost/compress/zlib"
)

// NewDeflate returns the deflate coding, which is the zlib format as HTTP defines it.
func NewDeflate() Codec {
	instantiator := newBaseInstance(
		func() writeResetter {
			w, err := zlib.NewWriterLevel(nil, 5)
			if err != nil {
				panic(err)
			}

			return w
		},
		func(src io.Reader) (io.Reader, error) {
			return zlib.NewReader(src)
		},
		func(r io.Reader, src io.Reader) error {
			return r.(zlib.Resetter).Reset(src, nil)
		},
	)

	return newBaseCodec("deflate", instantiator)
}
