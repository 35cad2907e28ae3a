package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type (
	URI struct {
		// MaxLength limits the request line. Longer ones are rejected with 414.
		MaxLength int `yaml:"max_length"`
	}

	Headers struct {
		// MaxNumber is the maximum number of headers allowed in a single request.
		MaxNumber int `yaml:"max_number"`
		// MaxSpace limits the whole request head. Exceeding it results in 431.
		MaxSpace int `yaml:"max_space"`
		// Default headers are included into every response implicitly, unless explicitly
		// overridden.
		Default map[string]string `yaml:"default" test:"nullable"`
	}

	Body struct {
		// MaxSize is the global upper bound of a request body. Bodies exceeding it are
		// marked as exceeding and aren't buffered.
		MaxSize int64 `yaml:"max_size"`
		// FileChunkSize is the granularity files are streamed with, when they can't be sent
		// with sendfile.
		FileChunkSize int `yaml:"file_chunk_size"`
	}

	NET struct {
		// ReadBufferSize is a size of buffer in bytes which will be used to read from
		// socket
		ReadBufferSize int `yaml:"read_buffer_size"`
		// ReadTimeout controls the maximal lifetime of IDLE connections, unless the route
		// overrides it.
		ReadTimeout time.Duration `yaml:"read_timeout"`
		// AcceptLoopInterruptPeriod controls how often will the Accept() call be interrupted
		// in order to check whether it's time to stop.
		AcceptLoopInterruptPeriod time.Duration `yaml:"accept_loop_interrupt_period"`
		// StallThreshold is the time without progress after which a connection is reported
		// as stalled. Stalled connections are never closed by the watcher.
		StallThreshold time.Duration `yaml:"stall_threshold"`
	}

	WebSocket struct {
		// MaxPayload limits a single frame.
		MaxPayload int64 `yaml:"max_payload"`
		// Timeout is used for upgraded connections, unless the route overrides it.
		Timeout time.Duration `yaml:"timeout"`
	}

	Session struct {
		// Cookie is the name of the cookie carrying the session id.
		Cookie string `yaml:"cookie"`
		// TTL is how long a session lives since it was last saved.
		TTL time.Duration `yaml:"ttl"`
		// CacheTTL is how long sessions are kept in memory in front of their files.
		CacheTTL time.Duration `yaml:"cache_ttl"`
		// Sweep is a cron spec (with seconds) of the expired sessions removal.
		Sweep string `yaml:"sweep"`
	}

	Server struct {
		// Name is sent in the Server header.
		Name string `yaml:"name"`
		// MaxRequests limits the number of exchanges over a single keep-alive connection.
		MaxRequests int `yaml:"max_requests"`
		// SmallBody limits how big must a response body be in order to be compressed.
		SmallBody int64 `yaml:"small_body"`
	}
)

// Config holds settings used across various parts of webcore, mainly restrictions,
// limitations and pre-allocations. Per-route settings are defined on routes instead.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	URI       URI       `yaml:"uri"`
	Headers   Headers   `yaml:"headers"`
	Body      Body      `yaml:"body"`
	NET       NET       `yaml:"net"`
	WebSocket WebSocket `yaml:"websocket"`
	Session   Session   `yaml:"session"`
	Server    Server    `yaml:"server"`
}

// Default returns default config.
func Default() *Config {
	return &Config{
		URI: URI{
			MaxLength: 8 * 1024,
		},
		Headers: Headers{
			MaxNumber: 64,
			MaxSpace:  16 * 1024,
			Default:   make(map[string]string),
		},
		Body: Body{
			MaxSize:       512 * 1024 * 1024,
			FileChunkSize: 64 * 1024,
		},
		NET: NET{
			ReadBufferSize:            4 * 1024,
			ReadTimeout:               90 * time.Second,
			AcceptLoopInterruptPeriod: 5 * time.Second,
			StallThreshold:            30 * time.Second,
		},
		WebSocket: WebSocket{
			MaxPayload: 16 * 1024 * 1024,
			Timeout:    10 * time.Minute,
		},
		Session: Session{
			Cookie:   "SESSID",
			TTL:      24 * time.Hour,
			CacheTTL: 5 * time.Minute,
			Sweep:    "0 */5 * * * *",
		},
		Server: Server{
			Name:        "webcore",
			MaxRequests: 1000,
			SmallBody:   1024,
		},
	}
}

// Parse overlays the YAML document on top of defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Load reads a YAML file and overlays it on top of defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return Parse(data)
}
