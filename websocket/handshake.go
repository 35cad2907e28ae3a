package websocket

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
)

// GUID is concatenated with the client key in order to derive the accept key.
const GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Version is the only protocol version supported.
const Version = "13"

// AcceptKey derives the Sec-WebSocket-Accept value from the Sec-WebSocket-Key one.
func AcceptKey(key string) string {
	digest := sha1.Sum([]byte(key + GUID))
	return base64.StdEncoding.EncodeToString(digest[:])
}

// NewKey generates a fresh Sec-WebSocket-Key value.
func NewKey() string {
	var nonce [16]byte
	_, _ = rand.Read(nonce[:])

	return base64.StdEncoding.EncodeToString(nonce[:])
}

// ValidKey tells whether the key decodes into exactly 16 bytes.
func ValidKey(key string) bool {
	nonce, err := base64.StdEncoding.DecodeString(key)
	return err == nil && len(nonce) == 16
}

// Close status codes.
const (
	CloseNormal          uint16 = 1000
	CloseGoingAway       uint16 = 1001
	CloseProtocolError   uint16 = 1002
	CloseUnsupported     uint16 = 1003
	CloseNoStatus        uint16 = 1005
	CloseInvalidPayload  uint16 = 1007
	ClosePolicyViolation uint16 = 1008
	CloseTooLarge        uint16 = 1009
	CloseInternalError   uint16 = 1011
)

// ClosePayload renders a close frame payload.
func ClosePayload(code uint16, reason string) []byte {
	payload := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(reason)), code)
	return append(payload, reason...)
}

// ParseClose extracts the status code and the reason out of the close frame payload. An
// empty payload yields CloseNoStatus.
func ParseClose(payload []byte) (code uint16, reason string) {
	if len(payload) < 2 {
		return CloseNoStatus, ""
	}

	return binary.BigEndian.Uint16(payload), string(payload[2:])
}
