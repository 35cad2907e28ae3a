// Package codec implements content codings used to compress response bodies and to
// decompress request and fetched bodies.
package codec

import (
	"io"
)

// Fetcher is a source of data pieces. An io.EOF error means the data is over, while the
// data returned along with it is still valid.
type Fetcher interface {
	Fetch() ([]byte, error)
}

type Codec interface {
	// Token returns a coding token associated with the codec itself.
	Token() string
	New() Instance
}

type Instance interface {
	Compressor
	Decompressor
}

type Compressor interface {
	io.WriteCloser
	ResetCompressor(w io.Writer)
}

type Decompressor interface {
	Fetcher
	ResetDecompressor(source Fetcher, bufferSize int) error
}

// Default returns all the supported codecs, in the order of server preference.
func Default() []Codec {
	return []Codec{NewBrotli(), NewZSTD(), NewGZIP(), NewDeflate()}
}
