package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Poll is the outcome of a single I/O operation, deciding how the state machine driving
// the connection proceeds.
type Poll uint8

const (
	// Next means the operation progressed and the caller must continue.
	Next Poll = iota
	// Done means the stream was completed by the peer or by the operation itself.
	Done
	// DoneAsync means the operation was completed by the kernel (sendfile) rather than by
	// copying through the user space.
	DoneAsync
	// Timeout means the deadline was exceeded.
	Timeout
	// Error is any other failure.
	Error
	// Skip means nothing happened, e.g. an empty read.
	Skip
	// Reset means the peer dropped the connection.
	Reset
)

var pollNames = [...]string{
	Next:      "next",
	Done:      "done",
	DoneAsync: "done-async",
	Timeout:   "timeout",
	Error:     "error",
	Skip:      "skip",
	Reset:     "reset",
}

func (p Poll) String() string {
	if int(p) >= len(pollNames) {
		return "unknown"
	}

	return pollNames[p]
}

// Classify turns a result of a read or write into a Poll.
func Classify(n int, err error) Poll {
	switch {
	case err == nil && n == 0:
		return Skip
	case err == nil:
		return Next
	case errors.Is(err, io.EOF):
		return Done
	case errors.Is(err, os.ErrDeadlineExceeded):
		return Timeout
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return Reset
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	return Error
}
