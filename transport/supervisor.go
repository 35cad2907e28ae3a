package transport

import (
	"context"
	"net"
	"sync"

	"github.com/indigo-web/webcore/config"
)

// Supervisor serves a set of bound transports as a whole: the first failing listener or
// a Stop call brings all of them down. Connection stall watching, when enabled, lasts
// exactly as long as the listeners do.
type Supervisor struct {
	members  []member
	stalls   *StallWatcher
	halt     chan struct{}
	haltOnce sync.Once
	done     chan struct{}
}

type member struct {
	t      Transport
	handle func(net.Conn)
}

// NewSupervisor returns an empty supervisor. The stall watcher may be nil.
func NewSupervisor(stalls *StallWatcher) *Supervisor {
	return &Supervisor{
		stalls: stalls,
		halt:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Add binds the transport. Failing to, it releases every transport bound before, so the
// supervisor must not be used anymore.
func (s *Supervisor) Add(addr string, t Transport, handle func(net.Conn)) error {
	if err := t.Bind(addr); err != nil {
		for _, l := range s.members {
			l.t.Close()
		}

		return err
	}

	s.members = append(s.members, member{t: t, handle: handle})
	return nil
}

// Addrs returns addresses of all the bound transports in order of their addition.
func (s *Supervisor) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(s.members))
	for _, l := range s.members {
		addrs = append(addrs, l.t.Addr())
	}

	return addrs
}

// Run accepts connections on every transport until Stop is called or any of them fails,
// whose error is returned then. Before returning, it waits for the active connections to
// be served and releases the transports.
func (s *Supervisor) Run(cfg config.NET) error {
	defer close(s.done)

	if len(s.members) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.stalls != nil {
		go s.stalls.Run(ctx)
	}

	errs := make(chan error, len(s.members))
	for _, l := range s.members {
		go func() {
			errs <- l.t.Listen(cfg, l.handle)
		}()
	}

	var (
		err     error
		running = len(s.members)
	)

	select {
	case err = <-errs:
		running--
	case <-s.halt:
	}

	s.shutdown()
	for range running {
		<-errs
	}

	return err
}

// Stop makes Run return and waits for it. Stopping before Run makes the latter return
// right away, so in that case Stop must be called concurrently.
func (s *Supervisor) Stop() {
	s.haltOnce.Do(func() {
		close(s.halt)
	})

	<-s.done
}

func (s *Supervisor) shutdown() {
	for _, l := range s.members {
		l.t.Stop()
	}

	for _, l := range s.members {
		l.t.Wait()
		l.t.Close()
	}
}
