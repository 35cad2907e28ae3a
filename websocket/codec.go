// Package websocket implements RFC 6455 framing and the per-connection session driving an
// upgraded connection.
package websocket

import (
	"errors"
)

type Opcode uint8

const (
	Continuation Opcode = 0x0
	Text         Opcode = 0x1
	Binary       Opcode = 0x2
	Close        Opcode = 0x8
	Ping         Opcode = 0x9
	Pong         Opcode = 0xA
)

func (o Opcode) IsControl() bool {
	return o&0x8 != 0
}

func (o Opcode) valid() bool {
	switch o {
	case Continuation, Text, Binary, Close, Ping, Pong:
		return true
	default:
		return false
	}
}

// maxControlPayload is the upper bound of a control frame payload.
const maxControlPayload = 125

var (
	// ErrProtocol is a protocol violation: a reserved opcode or bit, a fragmented control
	// frame or an oversized control frame. The connection must be closed.
	ErrProtocol = errors.New("websocket: protocol violation")
	// ErrTooLarge means a frame payload exceeds the configured limit.
	ErrTooLarge = errors.New("websocket: frame payload is too large")
)

type codecState uint8

const (
	stateBegin codecState = iota
	stateLength
	stateLength16_0
	stateLength16_1
	stateLength64_0
	stateLength64_1
	stateLength64_2
	stateLength64_3
	stateLength64_4
	stateLength64_5
	stateLength64_6
	stateLength64_7
	stateMask0
	stateMask1
	stateMask2
	stateMask3
	stateEnd
)

const payloadPrealloc = 4096

// Frame is a single decoded frame. Fragmented messages arrive as several frames, the
// last of them having Final set.
type Frame struct {
	Opcode  Opcode
	Final   bool
	Payload []byte
}

// Codec decodes a stream of frames. The state persists across ParseFrame calls, so frames
// may be split at any byte.
type Codec struct {
	// MaxPayload limits a single frame payload. Zero disables the limit.
	MaxPayload int64
	// RequireMasked rejects unmasked frames, as servers must.
	RequireMasked bool

	state   codecState
	final   bool
	opcode  Opcode
	masked  bool
	remains uint64
	mask    [4]byte
	maskIdx int
	payload []byte
	frames  []Frame
	err     error
}

func NewCodec(maxPayload int64) *Codec {
	return &Codec{MaxPayload: maxPayload}
}

// ParseFrame decodes as many frames as the buffer carries, queueing them. The buffer may
// be reused by the caller afterward. Once a violation is met, decoding halts for good and
// every further call returns the same error.
func (c *Codec) ParseFrame(buf []byte) error {
	if c.err != nil {
		return c.err
	}

	for i := 0; i < len(buf); {
		switch c.state {
		case stateBegin:
			b := buf[i]
			i++

			c.final = b&0x80 != 0
			c.opcode = Opcode(b & 0x0F)
			if b&0x70 != 0 || !c.opcode.valid() || (c.opcode.IsControl() && !c.final) {
				return c.fail(ErrProtocol)
			}

			c.state = stateLength
		case stateLength:
			b := buf[i]
			i++

			c.masked = b&0x80 != 0
			if c.RequireMasked && !c.masked {
				return c.fail(ErrProtocol)
			}

			switch length := b & 0x7F; length {
			case 126:
				c.remains = 0
				c.state = stateLength16_0
			case 127:
				c.remains = 0
				c.state = stateLength64_0
			default:
				c.remains = uint64(length)
				if err := c.lengthDone(); err != nil {
					return err
				}
			}
		case stateLength16_0, stateLength64_0, stateLength64_1, stateLength64_2,
			stateLength64_3, stateLength64_4, stateLength64_5, stateLength64_6:
			c.remains = c.remains<<8 | uint64(buf[i])
			i++
			c.state++
		case stateLength16_1, stateLength64_7:
			c.remains = c.remains<<8 | uint64(buf[i])
			i++

			if err := c.lengthDone(); err != nil {
				return err
			}
		case stateMask0, stateMask1, stateMask2:
			c.mask[c.state-stateMask0] = buf[i]
			i++
			c.state++
		case stateMask3:
			c.mask[3] = buf[i]
			i++
			c.beginPayload()
		case stateEnd:
			n := int(min(c.remains, uint64(len(buf)-i)))
			offset := len(c.payload)
			c.payload = append(c.payload, buf[i:i+n]...)
			if c.masked {
				c.maskIdx = MaskBytes(c.mask, c.maskIdx, c.payload[offset:])
			}

			i += n
			c.remains -= uint64(n)
			if c.remains == 0 {
				c.push()
			}
		}
	}

	return nil
}

// GetFrame pops the oldest decoded frame.
func (c *Codec) GetFrame() (frame Frame, ok bool) {
	if len(c.frames) == 0 {
		return frame, false
	}

	frame = c.frames[0]
	c.frames[0] = Frame{}
	c.frames = c.frames[1:]

	return frame, true
}

// Buffered returns the number of decoded frames waiting to be popped.
func (c *Codec) Buffered() int {
	return len(c.frames)
}

// Reset returns the codec to its initial state, dropping buffered frames.
func (c *Codec) Reset() {
	*c = Codec{MaxPayload: c.MaxPayload, RequireMasked: c.RequireMasked}
}

func (c *Codec) lengthDone() error {
	switch {
	case c.opcode.IsControl() && c.remains > maxControlPayload:
		return c.fail(ErrProtocol)
	case c.remains>>63 != 0:
		return c.fail(ErrProtocol)
	case c.MaxPayload > 0 && c.remains > uint64(c.MaxPayload):
		return c.fail(ErrTooLarge)
	}

	if c.masked {
		c.state = stateMask0
		return nil
	}

	c.beginPayload()
	return nil
}

func (c *Codec) beginPayload() {
	c.maskIdx = 0
	// the declared length is untrusted, so the payload grows as it actually arrives
	c.payload = make([]byte, 0, min(c.remains, payloadPrealloc))
	if c.remains == 0 {
		c.push()
		return
	}

	c.state = stateEnd
}

func (c *Codec) push() {
	c.frames = append(c.frames, Frame{
		Opcode:  c.opcode,
		Final:   c.final,
		Payload: c.payload,
	})
	c.payload = nil
	c.state = stateBegin
}

func (c *Codec) fail(err error) error {
	c.err = err
	return err
}

// AppendHeader renders a header of a final frame. When mask is not nil, the frame is marked
// as masked and the key is included; the payload must be masked by the caller.
func AppendHeader(buf []byte, op Opcode, length int, mask *[4]byte) []byte {
	var maskBit byte
	if mask != nil {
		maskBit = 0x80
	}

	buf = append(buf, 0x80|byte(op))

	switch {
	case length <= 125:
		buf = append(buf, maskBit|byte(length))
	case length <= 0xFFFF:
		buf = append(buf, maskBit|126, byte(length>>8), byte(length))
	default:
		l := uint64(length)
		buf = append(buf, maskBit|127,
			byte(l>>56), byte(l>>48), byte(l>>40), byte(l>>32),
			byte(l>>24), byte(l>>16), byte(l>>8), byte(l),
		)
	}

	if mask != nil {
		buf = append(buf, mask[:]...)
	}

	return buf
}

// MaskBytes applies the mask in place starting at the index into the key, returning the
// index the next portion of the same payload must continue with.
func MaskBytes(mask [4]byte, idx int, data []byte) int {
	for i := range data {
		data[i] ^= mask[(idx+i)&3]
	}

	return (idx + len(data)) & 3
}
