package httpparser

import "github.com/indigo-web/webcore/internal/hexconv"

type chunkedState uint8

const (
	chunkSize chunkedState = iota
	chunkExt
	chunkData
	chunkCRLF
	trailerLineHead
	trailerLineMiddle
)

// maxChunkSizeDigits limits the chunk size to what fits into uint64.
const maxChunkSizeDigits = 16

type chunkedDecoder struct {
	state     chunkedState
	bytesLeft uint64
	hexDigits uint8
}

// ParseDecodeChunked decodes chunked transfer-coding in place. On entry buf[:*length] holds
// freshly received encoded bytes, on return buf[:*length] holds the decoded payload they
// carried. The decoder state persists across calls, so the encoded stream may be split
// arbitrarily.
//
// Returns Incomplete if the terminating chunk wasn't met yet, Malformed on a framing error,
// or the number of bytes following the message. Those bytes are moved right after the
// decoded payload, i.e. to buf[*length:*length+n]. Chunk extensions and trailer fields are
// consumed and ignored.
func (p *Parser) ParseDecodeChunked(buf []byte, length *int) int {
	c := &p.chunked
	size := *length
	dst, src := 0, 0

	for {
		switch c.state {
		case chunkSize:
			for ; src < size; src++ {
				v := hexconv.Halfbyte[buf[src]]
				if v == 0xFF {
					break
				}

				if c.hexDigits == maxChunkSizeDigits {
					return Malformed
				}

				c.bytesLeft = c.bytesLeft<<4 | uint64(v)
				c.hexDigits++
			}

			if src == size {
				*length = dst
				return Incomplete
			}

			if c.hexDigits == 0 {
				return Malformed
			}

			c.hexDigits = 0
			c.state = chunkExt
		case chunkExt:
			for ; src < size && buf[src] != '\n'; src++ {
			}

			if src == size {
				*length = dst
				return Incomplete
			}

			src++
			if c.bytesLeft == 0 {
				c.state = trailerLineHead
				break
			}

			c.state = chunkData
		case chunkData:
			if avail := uint64(size - src); avail < c.bytesLeft {
				dst += copy(buf[dst:], buf[src:size])
				c.bytesLeft -= avail
				*length = dst
				return Incomplete
			}

			n := int(c.bytesLeft)
			dst += copy(buf[dst:], buf[src:src+n])
			src += n
			c.bytesLeft = 0
			c.state = chunkCRLF
		case chunkCRLF:
			for ; src < size && buf[src] == '\r'; src++ {
			}

			if src == size {
				*length = dst
				return Incomplete
			}

			if buf[src] != '\n' {
				return Malformed
			}

			src++
			c.state = chunkSize
		case trailerLineHead:
			for ; src < size && buf[src] == '\r'; src++ {
			}

			if src == size {
				*length = dst
				return Incomplete
			}

			if buf[src] == '\n' {
				src++
				leftover := copy(buf[dst:], buf[src:size])
				*length = dst
				*c = chunkedDecoder{}

				return leftover
			}

			c.state = trailerLineMiddle
		case trailerLineMiddle:
			for ; src < size && buf[src] != '\n'; src++ {
			}

			if src == size {
				*length = dst
				return Incomplete
			}

			src++
			c.state = trailerLineHead
		}
	}
}

// AppendChunk encodes data as a single chunk. Empty data produces the terminating chunk.
func AppendChunk(buf, data []byte) []byte {
	buf = appendHex(buf, uint64(len(data)))
	buf = append(buf, '\r', '\n')
	buf = append(buf, data...)
	return append(buf, '\r', '\n')
}

func appendHex(buf []byte, n uint64) []byte {
	const digits = "0123456789abcdef"

	if n == 0 {
		return append(buf, '0')
	}

	var scratch [16]byte
	i := len(scratch)
	for ; n > 0; n >>= 4 {
		i--
		scratch[i] = digits[n&0xF]
	}

	return append(buf, scratch[i:]...)
}
