package httpparser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// decodeSplit feeds the encoded stream in pieces of the given size, each piece into a
// separate scratch buffer, as a connection reading from a socket would.
func decodeSplit(t *testing.T, p *Parser, encoded []byte, step int) (payload, leftover []byte, status int) {
	t.Helper()

	for offset := 0; offset < len(encoded); offset += step {
		piece := encoded[offset:min(offset+step, len(encoded))]
		buf := make([]byte, len(piece))
		copy(buf, piece)
		length := len(buf)

		status = p.ParseDecodeChunked(buf, &length)
		if status == Malformed {
			return payload, nil, status
		}

		payload = append(payload, buf[:length]...)
		if status >= 0 {
			leftover = append(leftover, buf[length:length+status]...)
			leftover = append(leftover, encoded[offset+len(piece):]...)
			return payload, leftover, status
		}
	}

	return payload, nil, status
}

func TestChunked(t *testing.T) {
	tcs := []struct {
		Name     string
		Encoded  string
		Payload  string
		Leftover string
	}{
		{
			Name:    "zero chunks",
			Encoded: "0\r\n\r\n",
			Payload: "",
		},
		{
			Name:    "single chunk",
			Encoded: "d\r\nHello, world!\r\n0\r\n\r\n",
			Payload: "Hello, world!",
		},
		{
			Name:    "multiple chunks with extensions",
			Encoded: "7;name=value\r\nHello, \r\n6\r\nworld!\r\n0\r\n\r\n",
			Payload: "Hello, world!",
		},
		{
			Name:    "trailers",
			Encoded: "5\r\nHello\r\n0\r\nExpires: never\r\nX-Checksum: 42\r\n\r\n",
			Payload: "Hello",
		},
		{
			Name:     "pipelined data",
			Encoded:  "5\r\nHello\r\n0\r\n\r\nGET / HTTP/1.1\r\n",
			Payload:  "Hello",
			Leftover: "GET / HTTP/1.1\r\n",
		},
		{
			Name:    "bare LF",
			Encoded: "5\nHello\n0\n\n",
			Payload: "Hello",
		},
		{
			Name:    "uppercase hex",
			Encoded: "1A\r\n" + strings.Repeat("a", 26) + "\r\n0\r\n\r\n",
			Payload: strings.Repeat("a", 26),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			for step := 1; step <= len(tc.Encoded); step++ {
				p := New()
				payload, leftover, status := decodeSplit(t, p, []byte(tc.Encoded), step)
				require.GreaterOrEqual(t, status, 0, "step %d", step)
				require.Equal(t, tc.Payload, string(payload), "step %d", step)
				require.Equal(t, tc.Leftover, string(leftover), "step %d", step)
			}
		})
	}
}

func TestChunkedMalformed(t *testing.T) {
	for _, sample := range []string{
		"x\r\nhello\r\n",
		"\r\n",
		"5\r\nhelloX\r\n0\r\n\r\n",
		"11111111111111111\r\n",
	} {
		p := New()
		buf := []byte(sample)
		length := len(buf)
		require.Equal(t, Malformed, p.ParseDecodeChunked(buf, &length), "%q", sample)
	}
}

func TestChunkedIncomplete(t *testing.T) {
	p := New()
	buf := []byte("5\r\nHel")
	length := len(buf)
	require.Equal(t, Incomplete, p.ParseDecodeChunked(buf, &length))
	require.Equal(t, "Hel", string(buf[:length]))

	buf = []byte("lo\r\n0\r\n\r\n")
	length = len(buf)
	require.Equal(t, 0, p.ParseDecodeChunked(buf, &length))
	require.Equal(t, "lo", string(buf[:length]))
}

func TestAppendChunk(t *testing.T) {
	var encoded []byte
	encoded = AppendChunk(encoded, []byte(strings.Repeat("x", 300)))
	encoded = AppendChunk(encoded, nil)
	require.True(t, strings.HasPrefix(string(encoded), "12c\r\n"))

	p := New()
	payload, _, status := decodeSplit(t, p, encoded, 7)
	require.Equal(t, 0, status)
	require.Equal(t, strings.Repeat("x", 300), string(payload))
}
