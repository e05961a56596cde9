package tinyhttp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/zavakid/tiny-http/config"
	"github.com/zavakid/tiny-http/http/codec"
	httpserver "github.com/zavakid/tiny-http/internal/server/http"
	"github.com/zavakid/tiny-http/internal/tcp"
	"github.com/zavakid/tiny-http/router"
	"github.com/zavakid/tiny-http/router/simple"
	"github.com/zavakid/tiny-http/transport"
	"go.uber.org/zap"
)

// ErrAlreadyServing is returned if the app is served more than once.
var ErrAlreadyServing = errors.New("the app is already serving")

// App is the server application. It owns the listeners and serves every accepted connection
// until it's stopped.
type App struct {
	host      string
	port      uint16
	hooks     hooks
	listeners []listener
	store     *config.Store
	codecs    []codec.Codec
	logger    *zap.Logger
	onError   router.ErrorHandler
	sup       *transport.Supervisor
	ctx       context.Context
	cancel    context.CancelFunc
	serving   atomic.Bool
	err       error
}

// New returns a new App instance. The address is in form of host:port, the host may be empty.
func New(addr string) *App {
	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		panic(fmt.Errorf("tinyhttp: bad addr: %w", err))
	}

	port, err := strconv.ParseUint(rawPort, 10, 16)
	if err != nil {
		panic(fmt.Errorf("tinyhttp: bad port: %w", err))
	}

	store, _ := config.NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		host:    host,
		port:    uint16(port),
		store:   store,
		codecs:  codec.Default(),
		logger:  zap.NewNop(),
		onError: router.DefaultErrorHandler,
		sup:     transport.NewSupervisor(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Tune replaces the config. An invalid config makes Serve fail.
func (a *App) Tune(cfg *config.Config) *App {
	if err := a.store.Store(cfg); err != nil {
		a.err = fmt.Errorf("tinyhttp: bad config: %w", err)
	}

	return a
}

// Config returns the config store. Configs published while serving are picked up by new
// connections, already established ones keep using their snapshot.
func (a *App) Config() *config.Store {
	return a.store
}

// Logger sets the logger. Nothing is logged by default.
func (a *App) Logger(logger *zap.Logger) *App {
	a.logger = logger
	return a
}

// Codec replaces the set of available content codecs. The effective set is additionally
// limited by Codings.Supported of the config.
func (a *App) Codec(codecs ...codec.Codec) *App {
	a.codecs = codecs
	return a
}

// OnError sets the handler rendering errors into responses.
func (a *App) OnError(handler router.ErrorHandler) *App {
	a.onError = handler
	return a
}

// NotifyOnStart calls the callback at the moment, when all the listeners are bound. Connections
// are accepted right after the callback returns.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback at the moment, when all the listeners are down and all the
// clients are disconnected.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Listen adds a new listener on the port of the app's host. Nil transport means plain TCP.
func (a *App) Listen(port uint16, t transport.Transport) *App {
	if t == nil {
		t = transport.NewTCP()
	}

	a.listeners = append(a.listeners, listener{port, t})
	return a
}

// TLS adds a listener terminating TLS with the config.
func (a *App) TLS(port uint16, cfg *tls.Config) *App {
	return a.Listen(port, transport.NewTLS(cfg))
}

// Serve binds all the listeners and serves connections until stopped. If nil is passed instead
// of a router, every request is answered with 404 Not Found.
func (a *App) Serve(r router.Router) error {
	if a.err != nil {
		return a.err
	}

	if a.serving.Swap(true) {
		return ErrAlreadyServing
	}

	if r == nil {
		r = simple.New()
	}

	a.Listen(a.port, nil)
	cb := a.newConnCallback(r)

	for _, l := range a.listeners {
		addr := net.JoinHostPort(a.host, strconv.Itoa(int(l.port)))
		if err := a.sup.Add(addr, l.transport, cb); err != nil {
			return err
		}

		a.logger.Info("listening", zap.String("addr", l.transport.Addr().String()))
	}

	callIfNotNil(a.hooks.OnStart)
	err := a.sup.Run(a.store.Load().NET)
	a.cancel()
	callIfNotNil(a.hooks.OnStop)

	return err
}

// Addrs returns the addresses being listened. They're known once the app is started.
func (a *App) Addrs() []net.Addr {
	return a.sup.Addrs()
}

// GracefulStop stops accepting new connections. Already accepted ones stop reading new requests,
// but answer all those that were received. The call blocks until all the connections are closed.
func (a *App) GracefulStop() {
	a.cancel()
	a.sup.Stop()
}

// Stop closes all the connections immediately. The call blocks until they're released.
func (a *App) Stop() {
	a.cancel()
	a.sup.Drop()
	a.sup.Stop()
}

func (a *App) newConnCallback(r router.Router) func(net.Conn) {
	logger := a.logger.Named("conn")

	return func(conn net.Conn) {
		cfg := a.store.Load()
		client := tcp.NewClient(
			conn, cfg.NET.ReadTimeout, cfg.NET.WriteTimeout, make([]byte, cfg.NET.ReadBufferSize),
		)
		httpserver.New(cfg, client, r, a.onError, a.codecs, logger).Serve(a.ctx)
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

type listener struct {
	port      uint16
	transport transport.Transport
}
