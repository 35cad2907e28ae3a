// Package webcore ties the building blocks together into an application: it binds the
// listeners, prepares the sites and serves them until stopped.
package webcore

import (
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/indigo-web/webcore/config"
	"github.com/indigo-web/webcore/http/codec"
	"github.com/indigo-web/webcore/internal/address"
	"github.com/indigo-web/webcore/internal/server"
	"github.com/indigo-web/webcore/metrics"
	"github.com/indigo-web/webcore/router"
	"github.com/indigo-web/webcore/session"
	"github.com/indigo-web/webcore/transport"
)

// App is a set of listeners serving a single router.
type App struct {
	addr      string
	cfg       *config.Config
	log       *slog.Logger
	metrics   *metrics.Metrics
	codecs    []codec.Codec
	hooks     hooks
	listeners []listener
	errs      []error

	mu         sync.Mutex
	supervisor *transport.Supervisor
	stopping   bool
}

type listener struct {
	addr      string
	transport transport.Transport
}

// New returns an App listening on the plain TCP address. A lonely port like ":8080" binds
// all the interfaces.
func New(addr string) *App {
	return &App{
		addr: address.Normalize(addr),
		cfg:  config.Default(),
		log:  slog.Default(),
	}
}

// Tune replaces the default config.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

func (a *App) Logger(log *slog.Logger) *App {
	a.log = log
	return a
}

// Instrument enables metrics collection. Expose them via m.Handler() on a route.
func (a *App) Instrument(m *metrics.Metrics) *App {
	a.metrics = m
	return a
}

// Codecs restricts the content codings available for compression.
func (a *App) Codecs(codecs ...codec.Codec) *App {
	a.codecs = codecs
	return a
}

// NotifyOnStart calls the callback once all the listeners are bound, right before they
// start accepting connections.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback once all the listeners are down and every connection
// is served.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Listen adds a listener with an arbitrary transport.
func (a *App) Listen(addr string, t transport.Transport) *App {
	a.listeners = append(a.listeners, listener{
		addr:      address.Normalize(addr),
		transport: t,
	})

	return a
}

// TLS adds a TLS listener with the certificate pair loaded from the files.
func (a *App) TLS(addr, cert, key string) *App {
	certificate, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		a.errs = append(a.errs, err)
		return a
	}

	return a.Listen(addr, transport.NewTLS([]tls.Certificate{certificate}))
}

// Addrs returns the addresses of the bound listeners, the primary one going first. It's
// empty until the App is started, so it's best called from the OnStart hook.
func (a *App) Addrs() []net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.supervisor == nil {
		return nil
	}

	return a.supervisor.Addrs()
}

// Serve binds the listeners and serves the router until Stop is called or any listener
// fails. If nil is passed, an empty router is used.
func (a *App) Serve(r *router.MapRouter) error {
	if len(a.errs) > 0 {
		return a.errs[0]
	}

	if r == nil {
		r = router.New()
	}

	stores, err := a.startSessions(r)
	if err != nil {
		return err
	}

	defer stopSessions(stores)

	r.Freeze()

	stalls := transport.NewStallWatcher(a.cfg.NET.StallThreshold, a.onStall)
	srv := server.New(a.cfg, r, server.Options{
		Logger:  a.log,
		Metrics: a.metrics,
		Stalls:  stalls,
		Codecs:  a.codecs,
	})

	supervisor := transport.NewSupervisor(stalls)
	listeners := append([]listener{{addr: a.addr, transport: transport.NewTCP()}}, a.listeners...)
	for _, l := range listeners {
		if err = supervisor.Add(l.addr, l.transport, srv.Serve); err != nil {
			return err
		}
	}

	if !a.setSupervisor(supervisor) {
		// stopped before started: let the supervisor tear the bound transports down
		go supervisor.Stop()
		return supervisor.Run(a.cfg.NET)
	}

	for _, addr := range supervisor.Addrs() {
		a.log.Info("listening", "addr", addr.String())
	}

	callIfNotNil(a.hooks.OnStart)
	err = supervisor.Run(a.cfg.NET)
	callIfNotNil(a.hooks.OnStop)

	return err
}

// Stop closes the listeners and waits until every active connection is served. Stopping
// an App which isn't started yet makes its Serve return immediately.
func (a *App) Stop() {
	a.mu.Lock()
	a.stopping = true
	supervisor := a.supervisor
	a.mu.Unlock()

	if supervisor != nil {
		supervisor.Stop()
	}
}

func (a *App) setSupervisor(s *transport.Supervisor) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.supervisor = s
	return !a.stopping
}

func (a *App) onStall(remote net.Addr, idle time.Duration) {
	a.metrics.Stall(remote, idle)
	a.log.Warn("connection stalled", "remote", remote, "idle", idle)
}

// startSessions provides a session store to every site lacking one.
func (a *App) startSessions(r *router.MapRouter) ([]*session.Store, error) {
	var stores []*session.Store
	for _, site := range r.Sites() {
		if site.Sessions != nil {
			continue
		}

		store := session.NewStore(site.SessionRoot, a.cfg.Session, a.log)
		if err := store.Start(); err != nil {
			stopSessions(stores)
			return nil, err
		}

		site.Sessions = store
		stores = append(stores, store)
	}

	return stores, nil
}

func stopSessions(stores []*session.Store) {
	for _, store := range stores {
		store.Stop()
	}
}

type hooks struct {
	OnStart, OnStop func()
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
