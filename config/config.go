package config

import (
	"errors"
	"maps"
	"slices"
	"time"
)

type (
	HeadersNumber struct {
		Default, Maximal int
	}

	URIRequestLineSize struct {
		Default, Maximal int
	}

	NETWriteBufferSize struct {
		Default, Maximal int
	}
)

type (
	URI struct {
		// RequestLineSize limits the request line (method, target and protocol). Default is the
		// initial capacity of the per-request head storage, Maximal is the limit itself, exceeding
		// which results in 414 Request URI Too Long.
		RequestLineSize URIRequestLineSize
	}

	Headers struct {
		// Number is responsible for headers storage size.
		// Default value is an initial size of allocated headers storage.
		// Maximal value is maximum number of headers allowed to be presented
		Number HeadersNumber
		// MaxBytes limits the whole header section on the wire, including line terminators
		// and the terminating empty line.
		MaxBytes int
		// MaxEncodingTokens is a limit of how many codings can be applied at the body
		// in a single request, transfer codings included.
		MaxEncodingTokens int
		// MaxAcceptEncodingTokens is a limit of Accept-Encoding entries considered during
		// negotiation. Extra entries are ignored.
		MaxAcceptEncodingTokens int
		// Default headers are headers to be included into every response implicitly, unless
		// explicitly overridden.
		Default map[string]string `test:"nullable"`
	}

	Body struct {
		// MaxSize describes the maximal size of a body, that can be processed. 0 will discard
		// any request with body (each read from the request's body will result in
		// status.ErrBodyTooLarge). The limit also bounds how much is drained when a handler
		// leaves the body unread.
		MaxSize uint64
		// MaxChunkSize limits a single chunk of chunked transfer encoding.
		MaxChunkSize uint64
	}

	HTTP struct {
		// MaxPipelineDepth is how many requests may be in flight on a single connection at once.
		// Reading is paused while the limit is reached.
		MaxPipelineDepth int
		// MaxRequestsPerConn closes the connection after serving that many requests. Zero
		// disables the limit.
		MaxRequestsPerConn int `test:"nullable"`
		// RequestTimeout bounds the handler. A handler not producing a response in time results
		// in 504 Gateway Timeout.
		RequestTimeout time.Duration
		// StreamBufferSize is the size of a buffer used to copy streamed response bodies onto
		// the wire.
		StreamBufferSize int
	}

	NET struct {
		// ReadBufferSize is a size of buffer in bytes which will be used to read from
		// socket
		ReadBufferSize int
		// IdleTimeout controls the maximal lifetime of idle connections, i.e. having no
		// in-flight requests. If no data was received in this period of time, the connection
		// is closed silently.
		IdleTimeout time.Duration
		// ReadTimeout bounds a single read while a request head or body is being received.
		// Expiring amidst a head results in 408 Request Timeout.
		ReadTimeout time.Duration
		// WriteTimeout bounds writing a single response.
		WriteTimeout time.Duration
		// AcceptLoopInterruptPeriod controls how often will the Accept() call be interrupted
		// in order to check whether it's time to stop.
		AcceptLoopInterruptPeriod time.Duration
		// WriteBufferSize stores the serialized response head and small bodies.
		WriteBufferSize NETWriteBufferSize
	}

	Codings struct {
		// Supported lists content-codings the server is willing to produce and to decode. Only
		// the codings having a registered codec are effective.
		Supported []string
		// AutoCompress enables compressing responses according to Accept-Encoding.
		AutoCompress bool
		// SmallBody is the minimal size of a sized response body to be compressed. Smaller bodies
		// are sent as is, unless identity isn't acceptable for the client.
		SmallBody int64
	}
)

// Config holds settings used across the server, mainly restrictions, limitations
// and pre-allocations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	URI     URI
	Headers Headers
	Body    Body
	HTTP    HTTP
	NET     NET
	Codings Codings
}

// Default returns default config. Those are initially well-balanced, however maximal defaults
// are pretty permitting.
func Default() *Config {
	return &Config{
		URI: URI{
			RequestLineSize: URIRequestLineSize{
				Default: 512,
				// most web-entities limit it to 4-8kb, so 16kb is pretty much tolerant
				Maximal: 16 * 1024,
			},
		},
		Headers: Headers{
			Number: HeadersNumber{
				Default: 10,
				Maximal: 100,
			},
			MaxBytes:                16 * 1024, // extremely long cookies are still a thing
			MaxEncodingTokens:       4,         // 1 for chunked, leaving at most 3 codings composed
			MaxAcceptEncodingTokens: 20,
			Default:                 make(map[string]string),
		},
		Body: Body{
			MaxSize:      512 * 1024 * 1024, // 512 megabytes
			MaxChunkSize: 16 * 1024 * 1024,
		},
		HTTP: HTTP{
			MaxPipelineDepth: 16,
			RequestTimeout:   60 * time.Second,
			StreamBufferSize: 16 * 1024,
		},
		NET: NET{
			ReadBufferSize:            4 * 1024,
			IdleTimeout:               90 * time.Second,
			ReadTimeout:               30 * time.Second,
			WriteTimeout:              30 * time.Second,
			AcceptLoopInterruptPeriod: 5 * time.Second,
			WriteBufferSize: NETWriteBufferSize{
				Default: 2 * 1024,
				Maximal: 64 * 1024,
			},
		},
		Codings: Codings{
			Supported:    []string{"br", "zstd", "gzip", "deflate"},
			AutoCompress: true,
			SmallBody:    1024,
		},
	}
}

var (
	ErrBadLimit    = errors.New("limits must be positive")
	ErrBadTimeout  = errors.New("timeouts must be positive")
	ErrBadPrealloc = errors.New("default capacity must not exceed the maximal one")
)

// Validate checks whether the config is usable.
func (c *Config) Validate() error {
	switch {
	case c.Headers.MaxBytes <= 0, c.Headers.Number.Maximal <= 0, c.URI.RequestLineSize.Maximal <= 0,
		c.HTTP.MaxPipelineDepth <= 0, c.NET.ReadBufferSize <= 0, c.HTTP.StreamBufferSize <= 0,
		c.Body.MaxChunkSize == 0, c.Headers.MaxEncodingTokens <= 0, c.HTTP.MaxRequestsPerConn < 0,
		c.NET.WriteBufferSize.Maximal <= 0:
		return ErrBadLimit
	case c.NET.IdleTimeout <= 0, c.NET.ReadTimeout <= 0, c.NET.WriteTimeout <= 0,
		c.HTTP.RequestTimeout <= 0, c.NET.AcceptLoopInterruptPeriod <= 0:
		return ErrBadTimeout
	case c.Headers.Number.Default > c.Headers.Number.Maximal,
		c.URI.RequestLineSize.Default > c.URI.RequestLineSize.Maximal,
		c.NET.WriteBufferSize.Default > c.NET.WriteBufferSize.Maximal:
		return ErrBadPrealloc
	}

	return nil
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	cloned := *c
	cloned.Headers.Default = maps.Clone(c.Headers.Default)
	cloned.Codings.Supported = slices.Clone(c.Codings.Supported)

	return &cloned
}
