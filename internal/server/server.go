// Package server drives HTTP/1.x connections: it reads and parses requests, routes them,
// exposes bodies to handlers, composes responses and hands upgraded connections over to
// websocket sessions.
package server

import (
	"log/slog"
	"maps"
	"net"
	"slices"

	"github.com/indigo-web/webcore/config"
	"github.com/indigo-web/webcore/http/codec"
	"github.com/indigo-web/webcore/kv"
	"github.com/indigo-web/webcore/metrics"
	"github.com/indigo-web/webcore/router"
	"github.com/indigo-web/webcore/transport"
)

// Server is the state shared by all the connections. It's read-only once serving started.
type Server struct {
	cfg     *config.Config
	router  *router.MapRouter
	log     *slog.Logger
	metrics *metrics.Metrics
	stalls  *transport.StallWatcher
	codecs  []codec.Codec

	// defaults are config default headers in a stable order
	defaults []kv.Pair
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Stalls  *transport.StallWatcher
	// Codecs are the content codings available for compression. All the built-in ones are
	// used if nil.
	Codecs []codec.Codec
}

func New(cfg *config.Config, r *router.MapRouter, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Codecs == nil {
		opts.Codecs = codec.Default()
	}

	var defaults []kv.Pair
	for _, key := range slices.Sorted(maps.Keys(cfg.Headers.Default)) {
		defaults = append(defaults, kv.Pair{Key: key, Value: cfg.Headers.Default[key]})
	}

	return &Server{
		cfg:      cfg,
		router:   r,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		stalls:   opts.Stalls,
		codecs:   opts.Codecs,
		defaults: defaults,
	}
}

// Serve drives the connection until it's closed. It's meant to be used as a transport
// callback, so it's called in a goroutine of its own per connection.
func (s *Server) Serve(conn net.Conn) {
	buff := make([]byte, s.cfg.NET.ReadBufferSize)
	client := transport.NewClient(conn, s.cfg.NET.ReadTimeout, buff)
	s.ServeClient(client)
}

// ServeClient is the same as Serve, but over an already wrapped client.
func (s *Server) ServeClient(client transport.Client) {
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	var progress *transport.Progress
	if s.stalls != nil {
		progress = s.stalls.Track(client.Remote())
		defer progress.Done()
	}

	NewConnection(s, client, progress).Run()
}
