package websocket

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"

	"github.com/indigo-web/webcore/transport"
)

// State is the step the session driver is currently at.
type State uint8

const (
	StateOpen State = iota
	StateReceive
	StateProcess
	StateClose
	StateClosed
)

// Tunneling describes the closing handshake progress.
type Tunneling uint32

const (
	// Healthy is a tunnel no close frame was sent over.
	Healthy Tunneling = iota
	// Closing means the close frame was sent and the peer's one is awaited.
	Closing
	// Gone is a tunnel which can't be written to anymore.
	Gone
)

// Handler is called for every complete data message. Fragmented messages are reassembled
// beforehand. The payload must not be retained after the handler returns. Returning an error
// closes the session.
type Handler func(s *Session, op Opcode, payload []byte) error

// Lifetime is notified exactly once when the session ends. Success reports whether the
// closing handshake has completed properly.
type Lifetime interface {
	Close(success bool)
}

type LifetimeFunc func(success bool)

func (l LifetimeFunc) Close(success bool) {
	l(success)
}

type Options struct {
	// Mask outbound frames. Must be set on the client side only.
	Mask bool
	// MaxPayload limits both single frames and reassembled messages. Zero means no limit.
	MaxPayload int64
	Logger     *slog.Logger
}

// Session drives an upgraded connection: it reads and decodes frames, answers control
// frames, delivers messages to the handler and serializes outbound frames.
type Session struct {
	client     transport.Client
	codec      *Codec
	handler    Handler
	lifetime   Lifetime
	log        *slog.Logger
	mask       bool
	maxPayload int64

	state      State
	tunneling  atomic.Uint32
	success    bool
	fragmented bool
	fragOp     Opcode
	fragments  []byte
	once       sync.Once

	queue   outbound
	header  []byte
	scratch []byte
}

func NewSession(client transport.Client, handler Handler, lifetime Lifetime, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	codec := NewCodec(opts.MaxPayload)
	codec.RequireMasked = !opts.Mask

	return &Session{
		client:     client,
		codec:      codec,
		handler:    handler,
		lifetime:   lifetime,
		log:        opts.Logger.With("remote", client.Remote()),
		mask:       opts.Mask,
		maxPayload: opts.MaxPayload,
		state:      StateOpen,
	}
}

// Run drives the session until it's closed. It must be called exactly once.
func (s *Session) Run() {
	for s.state != StateClosed {
		s.step()
	}
}

func (s *Session) step() {
	switch s.state {
	case StateOpen:
		s.state = StateReceive
	case StateReceive:
		if s.Tunneling() == Gone {
			s.state = StateClose
			return
		}

		if s.codec.Buffered() > 0 {
			s.state = StateProcess
			return
		}

		data, err := s.client.Read()
		if err != nil {
			s.log.Debug("websocket connection is lost", "err", err)
			s.tunneling.Store(uint32(Gone))
			s.state = StateClose
			return
		}

		if err = s.codec.ParseFrame(data); err != nil {
			s.violation(err)
		}
	case StateProcess:
		frame, ok := s.codec.GetFrame()
		s.state = StateReceive
		if ok {
			s.process(frame)
		}
	case StateClose:
		s.tunneling.Store(uint32(Gone))
		if err := s.client.Close(); err != nil {
			s.log.Debug("closing websocket connection", "err", err)
		}

		s.state = StateClosed
		s.notify(s.success)
	}
}

func (s *Session) process(frame Frame) {
	switch frame.Opcode {
	case Ping:
		if s.Tunneling() == Healthy {
			s.Send(frame.Payload, Pong, nil)
		}
	case Pong:
	case Close:
		code, _ := ParseClose(frame.Payload)
		if code == CloseNoStatus {
			code = CloseNormal
		}

		if s.tunneling.CompareAndSwap(uint32(Healthy), uint32(Closing)) {
			s.sendSync(Close, ClosePayload(code, ""))
		}

		s.success = true
		s.state = StateClose
	case Text, Binary:
		if s.fragmented {
			s.violation(ErrProtocol)
			return
		}

		if !frame.Final {
			s.fragmented = true
			s.fragOp = frame.Opcode
			s.fragments = append(s.fragments[:0], frame.Payload...)
			return
		}

		s.deliver(frame.Opcode, frame.Payload)
	case Continuation:
		if !s.fragmented {
			s.violation(ErrProtocol)
			return
		}

		s.fragments = append(s.fragments, frame.Payload...)
		if s.maxPayload > 0 && int64(len(s.fragments)) > s.maxPayload {
			s.violation(ErrTooLarge)
			return
		}

		if frame.Final {
			s.fragmented = false
			s.deliver(s.fragOp, s.fragments)
			s.fragments = s.fragments[:0]
		}
	}
}

func (s *Session) deliver(op Opcode, payload []byte) {
	if s.Tunneling() != Healthy || s.handler == nil {
		return
	}

	if err := s.handler(s, op, payload); err != nil {
		s.log.Warn("websocket handler failed", "err", err)
		if s.tunneling.CompareAndSwap(uint32(Healthy), uint32(Closing)) {
			s.sendSync(Close, ClosePayload(CloseInternalError, ""))
		}

		s.state = StateClose
	}
}

func (s *Session) violation(err error) {
	s.log.Warn("websocket protocol violation", "err", err)

	code := CloseProtocolError
	if errors.Is(err, ErrTooLarge) {
		code = CloseTooLarge
	}

	if s.tunneling.CompareAndSwap(uint32(Healthy), uint32(Closing)) {
		s.sendSync(Close, ClosePayload(code, ""))
	}

	s.state = StateClose
}

func (s *Session) notify(success bool) {
	s.once.Do(func() {
		s.log.Debug("websocket session is closed", "success", success)
		if s.lifetime != nil {
			s.lifetime.Close(success)
		}
	})
}

// Send enqueues a frame. Frames are written in the order they were enqueued; done, if not
// nil, is called once the frame is written or has failed. Safe for concurrent use. Nothing
// but control frames can be sent after the closing handshake has begun.
func (s *Session) Send(payload []byte, op Opcode, done func(error)) {
	switch t := s.Tunneling(); {
	case t == Gone, t == Closing && !op.IsControl():
		if done != nil {
			done(net.ErrClosed)
		}

		return
	}

	s.enqueue(message{op: op, payload: payload, done: done})
}

// Finish starts the closing handshake. Repeated calls have no effect.
func (s *Session) Finish() {
	if s.tunneling.CompareAndSwap(uint32(Healthy), uint32(Closing)) {
		s.enqueue(message{op: Close, payload: ClosePayload(CloseNormal, "")})
	}
}

// Pending returns the number of frames waiting to be written.
func (s *Session) Pending() int {
	return s.queue.Len()
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Tunneling() Tunneling {
	return Tunneling(s.tunneling.Load())
}

func (s *Session) Remote() net.Addr {
	return s.client.Remote()
}

func (s *Session) sendSync(op Opcode, payload []byte) {
	done := make(chan struct{})
	s.enqueue(message{op: op, payload: payload, done: func(error) {
		close(done)
	}})
	<-done
}

func (s *Session) enqueue(msg message) {
	if !s.queue.Enqueue(msg) {
		// somebody else is already writing and will pick it up
		return
	}

	for {
		msg, ok := s.queue.Dequeue()
		if !ok {
			return
		}

		err := s.write(msg.op, msg.payload)
		if err != nil {
			s.tunneling.Store(uint32(Gone))
		}

		if msg.done != nil {
			msg.done(err)
		}
	}
}

// write is called by the only flushing goroutine at a time, so the buffers are never shared.
func (s *Session) write(op Opcode, payload []byte) error {
	if s.Tunneling() == Gone && op != Close {
		return net.ErrClosed
	}

	if !s.mask {
		s.header = AppendHeader(s.header[:0], op, len(payload), nil)
	} else {
		var key [4]byte
		r := rand.Uint32()
		key[0], key[1], key[2], key[3] = byte(r>>24), byte(r>>16), byte(r>>8), byte(r)
		s.header = AppendHeader(s.header[:0], op, len(payload), &key)
		s.scratch = append(s.scratch[:0], payload...)
		MaskBytes(key, 0, s.scratch)
		payload = s.scratch
	}

	if _, err := s.client.Write(s.header); err != nil {
		return err
	}

	if len(payload) == 0 {
		return nil
	}

	_, err := s.client.Write(payload)
	return err
}

type message struct {
	op      Opcode
	payload []byte
	done    func(error)
}

// outbound is the FIFO of frames to be written. The busy flag elects a single writer.
type outbound struct {
	mu    sync.Mutex
	items []message
	busy  bool
}

// Enqueue appends the message and reports whether the caller became the writer.
func (o *outbound) Enqueue(msg message) (writer bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.items = append(o.items, msg)
	if o.busy {
		return false
	}

	o.busy = true
	return true
}

// Dequeue pops the oldest message. When there are none, the writer role is released.
func (o *outbound) Dequeue() (msg message, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.items) == 0 {
		o.busy = false
		o.items = o.items[:0]
		return msg, false
	}

	msg = o.items[0]
	o.items[0] = message{}
	o.items = o.items[1:]

	return msg, true
}

func (o *outbound) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.items)
}
