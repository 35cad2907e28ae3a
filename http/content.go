package http

import (
	"bytes"
	"io"
	"os"

	"github.com/indigo-web/webcore/kv"
)

// Resource is a single part of a multipart body. Parts are either kept in memory (Data)
// or spilled into a file under the site's resource root (Path).
type Resource struct {
	Path     string
	Name     string
	Filename string
	Type     string
	Length   int64
	Headers  *kv.Storage
	Data     []byte
}

func (r *Resource) IsInMemory() bool {
	return len(r.Path) == 0
}

// Open returns a reader over the resource content regardless of its backing store.
func (r *Resource) Open() (io.ReadCloser, error) {
	if r.IsInMemory() {
		return io.NopCloser(bytes.NewReader(r.Data)), nil
	}

	return os.Open(r.Path)
}

// Remove deletes the backing file, if any.
func (r *Resource) Remove() error {
	if r.IsInMemory() {
		return nil
	}

	return os.Remove(r.Path)
}

// ContentFrame is the body of a message. Limited frames have their Length known in
// advance (Content-Length), unlimited ones are finalized explicitly.
type ContentFrame struct {
	Data      []byte
	Length    int64
	Offset    int64
	Limited   bool
	Exceeds   bool
	Resources []Resource
	finalized bool
}

// IsFinalized reports whether every declared byte was consumed.
func (c *ContentFrame) IsFinalized() bool {
	if c.Limited {
		return c.Offset >= c.Length
	}

	return c.finalized
}

// Finalize marks an unlimited frame as completely consumed.
func (c *ContentFrame) Finalize() {
	c.finalized = true
}

// Remaining returns the number of bytes left for limited frames. Unlimited frames
// report -1 until finalized.
func (c *ContentFrame) Remaining() int64 {
	switch {
	case c.Limited:
		return max(c.Length-c.Offset, 0)
	case c.finalized:
		return 0
	default:
		return -1
	}
}

// Advance moves the consumed offset forward by n bytes.
func (c *ContentFrame) Advance(n int) {
	c.Offset += int64(n)
}

// Append buffers the data. The offset isn't touched.
func (c *ContentFrame) Append(data []byte) {
	c.Data = append(c.Data, data...)
}

// Set replaces buffered data and declares its length.
func (c *ContentFrame) Set(data []byte) {
	c.Data = data
	c.Length = int64(len(data))
	c.Limited = true
}

func (c *ContentFrame) Reset() {
	c.Data = c.Data[:0]
	c.Length = 0
	c.Offset = 0
	c.Limited = false
	c.Exceeds = false
	c.finalized = false
	clear(c.Resources)
	c.Resources = c.Resources[:0]
}
