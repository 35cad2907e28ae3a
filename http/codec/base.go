package codec

import (
	"io"
)

var _ Codec = baseCodec{}

type instantiator = func() Instance

type baseCodec struct {
	token   string
	newInst instantiator
}

func newBaseCodec(token string, newInst instantiator) baseCodec {
	return baseCodec{
		token:   token,
		newInst: newInst,
	}
}

func (b baseCodec) Token() string {
	return b.token
}

func (b baseCodec) New() Instance {
	return b.newInst()
}

var _ Instance = new(baseInstance)

type (
	// openReader creates a decompressor the first time, when no reader exists yet.
	openReader = func(src io.Reader) (io.Reader, error)
	// resetReader reuses the already existing decompressor.
	resetReader = func(r io.Reader, src io.Reader) error

	writeResetter interface {
		io.WriteCloser
		Reset(dst io.Writer)
	}
)

type baseInstance struct {
	open    openReader
	reset   resetReader
	adapter *readerAdapter
	w       writeResetter // compressor
	r       io.Reader     // decompressor
	dst     io.Closer
	buff    []byte
}

func newBaseInstance(newWriter func() writeResetter, open openReader, reset resetReader) instantiator {
	return func() Instance {
		return &baseInstance{
			open:    open,
			reset:   reset,
			adapter: new(readerAdapter),
			w:       newWriter(),
		}
	}
}

func (b *baseInstance) ResetCompressor(w io.Writer) {
	b.w.Reset(w)
	b.dst = nil

	if c, ok := w.(io.Closer); ok {
		b.dst = c
	}
}

func (b *baseInstance) Write(p []byte) (n int, err error) {
	return b.w.Write(p)
}

// Close flushes the compressor and closes the destination, if it's closable.
func (b *baseInstance) Close() error {
	if err := b.w.Close(); err != nil {
		return err
	}

	if b.dst != nil {
		return b.dst.Close()
	}

	return nil
}

func (b *baseInstance) ResetDecompressor(source Fetcher, bufferSize int) error {
	if cap(b.buff) < bufferSize {
		b.buff = make([]byte, bufferSize)
	}

	b.buff = b.buff[:bufferSize]
	b.adapter.Reset(source)

	if b.r != nil {
		return b.reset(b.r, b.adapter)
	}

	r, err := b.open(b.adapter)
	if err != nil {
		return err
	}

	b.r = r
	return nil
}

func (b *baseInstance) Fetch() ([]byte, error) {
	n, err := b.r.Read(b.buff)
	return b.buff[:n], err
}

// readerAdapter turns a Fetcher into an io.Reader.
type readerAdapter struct {
	fetcher Fetcher
	err     error
	data    []byte
}

func (r *readerAdapter) Read(b []byte) (n int, err error) {
	if len(r.data) == 0 {
		if r.err != nil {
			return 0, r.err
		}

		r.data, r.err = r.fetcher.Fetch()
	}

	n = copy(b, r.data)
	r.data = r.data[n:]
	if len(r.data) == 0 {
		err = r.err
	}

	return n, err
}

func (r *readerAdapter) Reset(fetcher Fetcher) {
	*r = readerAdapter{fetcher: fetcher}
}
