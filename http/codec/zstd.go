package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

func NewZSTD() Codec {
	instantiator := newBaseInstance(
		func() writeResetter {
			w, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
			if err != nil {
				panic(err)
			}

			return w
		},
		func(src io.Reader) (io.Reader, error) {
			return zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		},
		func(r io.Reader, src io.Reader) error {
			return r.(*zstd.Decoder).Reset(src)
		},
	)

	return newBaseCodec("zstd", instantiator)
}
