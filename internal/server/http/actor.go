package http

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/zavakid/tiny-http/config"
	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/http/codec"
	"github.com/zavakid/tiny-http/http/method"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/internal/codecutil"
	"github.com/zavakid/tiny-http/internal/negotiate"
	"github.com/zavakid/tiny-http/internal/protocol/http1"
	"github.com/zavakid/tiny-http/internal/tcp"
	"github.com/zavakid/tiny-http/router"
	"go.uber.org/zap"
)

var errStopped = fmt.Errorf("%w: %w", status.ErrReadFailed, tcp.ErrInterrupted)

// Actor serves a single connection. Requests are read and dispatched to handlers one after
// another by the reading side, while the writing side awaits their outcomes and writes responses
// strictly in order the requests arrived. At most MaxPipelineDepth requests are in flight,
// after that the reading is paused until a response is written.
type Actor struct {
	cfg        *config.Config
	client     tcp.Client
	remote     net.Addr
	router     router.Router
	onError    router.ErrorHandler
	logger     *zap.Logger
	observe    TransitionFunc
	parser     *http1.Parser
	bodies     *http1.BodyDecoder
	decoders   *codecutil.Cache
	serializer *http1.Serializer
	negotiator *negotiate.Negotiator

	slots []*exchange
	free  chan int
	ready chan int

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	inflight atomic.Int32
	draining atomic.Bool
	served   int

	// mu guards awaiting and stopping
	mu       sync.Mutex
	awaiting bool
	stopping bool
}

// New returns an actor for the client. The codecs are filtered down to the supported ones.
// The config must not be modified as long as the actor lives.
func New(
	cfg *config.Config, client tcp.Client, r router.Router, onError router.ErrorHandler,
	codecs []codec.Codec, logger *zap.Logger,
) *Actor {
	if onError == nil {
		onError = router.DefaultErrorHandler
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	codecs = codecutil.Filter(codecs, cfg.Codings.Supported)
	encoders := codecutil.NewCache(codecs)
	depth := cfg.HTTP.MaxPipelineDepth

	a := &Actor{
		cfg:        cfg,
		client:     client,
		remote:     client.Remote(),
		router:     r,
		onError:    onError,
		logger:     logger.With(zap.String("remote", addrString(client.Remote()))),
		parser:     http1.NewParser(cfg),
		bodies:     http1.NewBodyDecoder(client, cfg),
		decoders:   codecutil.NewCache(codecs),
		serializer: http1.NewSerializer(cfg, client, encoders),
		negotiator: negotiate.New(encoders.Tokens(), cfg.Headers.MaxAcceptEncodingTokens),
		slots:      make([]*exchange, depth),
		free:       make(chan int, depth),
		ready:      make(chan int, depth),
		done:       make(chan struct{}),
	}

	for i := range depth {
		a.slots[i] = newExchange(cfg)
		a.free <- i
	}

	return a
}

// Observe installs the transition observer. Must be called before Serve.
func (a *Actor) Observe(fn TransitionFunc) *Actor {
	a.observe = fn
	return a
}

// Serve runs the connection until it's closed. The client is closed on return. Cancelling the
// context stops reading new requests, however already dispatched ones are still answered.
func (a *Actor) Serve(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	defer a.cancel()

	stop := context.AfterFunc(ctx, a.stop)
	defer stop()

	go a.read()
	a.write()
}

func (a *Actor) read() {
	defer close(a.ready)
	defer a.enterDraining()

	for {
		var idx int
		select {
		case idx = <-a.free:
		case <-a.done:
			return
		}

		ex := a.slots[idx]
		ex.reset()

		if !a.receive(idx, ex) {
			return
		}

		if ex.meta.KeepAlive {
			if !a.settle(ex) {
				return
			}

			continue
		}

		return
	}
}

// receive reads the request head, prepares the body and dispatches the request. False is
// returned if no more requests can be read from the connection.
func (a *Actor) receive(idx int, ex *exchange) bool {
	request := ex.request
	a.parser.Reset(request, ex.arena)

	extra, err := a.readHead(idx, ex)
	if err != nil {
		if status.KindOf(err) == status.IOFailure {
			return false
		}

		a.logger.Debug("malformed request", zap.Error(err))
		a.reject(idx, ex, err)
		return false
	}

	if len(extra) > 0 {
		a.client.Pushback(extra)
	}

	a.transition(idx, ex, AwaitingBody)
	request.Remote = a.remote

	raw := a.bodies.Reset(request, ex.trailers)
	ex.hasBody = raw != nil
	var source http.Fetcher
	if ex.hasBody && len(request.Encoding.Content) > 0 {
		source, err = a.decoders.Decoder(raw, request.Encoding.Content, a.cfg.NET.ReadBufferSize)
		if err != nil {
			a.logger.Debug("undecodable request body", zap.Error(err))
			a.reject(idx, ex, err)
			return false
		}
	}

	request.Body.Reset(raw, source, a.cfg.Body.MaxSize, ex.trailers, request.ContentType)

	a.served++
	keepAlive := request.KeepAlive()
	if limit := a.cfg.HTTP.MaxRequestsPerConn; limit > 0 && a.served >= limit {
		keepAlive = false
	}

	ex.meta = http1.Meta{
		Protocol:  request.Protocol,
		Method:    request.Method,
		KeepAlive: keepAlive,
	}

	if a.cfg.Codings.AutoCompress {
		ex.coding, ex.codingErr = a.negotiator.Negotiate(request.Headers.Values("accept-encoding"))
	}

	ex.ctx, ex.cancel = context.WithTimeout(a.ctx, a.cfg.HTTP.RequestTimeout)
	request.Ctx = ex.ctx

	a.transition(idx, ex, Dispatched)
	a.inflight.Add(1)
	go a.handle(ex)
	a.ready <- idx

	return true
}

// readHead feeds the parser until the head is complete. Waiting for the very first byte is
// bounded by the idle timeout, the rest of the head by the read timeout.
func (a *Actor) readHead(idx int, ex *exchange) ([]byte, error) {
	started := false
	a.client.SetTimeout(a.cfg.NET.IdleTimeout)

	for {
		if !started && a.await(true) {
			return nil, errStopped
		}

		data, err := a.client.Read()
		if !started && a.await(false) {
			// whatever was read is dropped, as the client might have been interrupted already
			return nil, errStopped
		}

		if err != nil {
			switch {
			case !tcp.IsTimeout(err):
			case !started && a.inflight.Load() > 0:
				// the peer is awaiting responses, it's not idling
				continue
			case started:
				return nil, status.ErrRequestTimeout
			}

			return nil, fmt.Errorf("%w: %w", status.ErrReadFailed, err)
		}

		if len(data) == 0 {
			continue
		}

		if !started {
			started = true
			a.transition(idx, ex, ParsingHead)
			a.client.SetTimeout(a.cfg.NET.ReadTimeout)
		}

		done, extra, err := a.parser.Parse(data)
		if err != nil {
			return nil, err
		}

		if done {
			return extra, nil
		}
	}
}

// reject passes the exchange with an error to the writing side. The connection is closed after
// the response, as the framing can't be trusted anymore.
func (a *Actor) reject(idx int, ex *exchange, err error) {
	ex.err = err
	ex.meta = http1.Meta{
		Protocol: ex.request.Protocol,
		Method:   ex.request.Method,
	}
	ex.settle(nil)
	a.inflight.Add(1)
	a.ready <- idx
}

// settle waits until the handler is done with the body, after which the rest of the body is
// drained off the wire, so the stream is positioned at the next request.
func (a *Actor) settle(ex *exchange) bool {
	if !ex.hasBody {
		ex.settle(nil)
		return true
	}

	select {
	case <-ex.request.Body.Finished():
	case <-a.done:
		return false
	}

	err := ex.request.Body.Drain()
	ex.settle(err)
	if err != nil {
		a.logger.Debug("failed to drain request body", zap.Error(err))
		return false
	}

	return true
}

func (a *Actor) handle(ex *exchange) {
	response, err := a.serve(ex.request)
	ex.outcome <- outcome{response, err}
}

func (a *Actor) serve(request *http.Request) (response *http.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			response, err = nil, fmt.Errorf("%w: %v", status.ErrInternalServerError, r)
		}
	}()

	handler, err := a.router.Route(request)
	if err != nil {
		return nil, err
	}

	return handler.Serve(request)
}

func (a *Actor) write() {
	for idx := range a.ready {
		ex := a.slots[idx]
		keepAlive := a.respond(idx, ex)
		a.inflight.Add(-1)
		if !keepAlive {
			a.shutdown()
			break
		}

		a.transition(idx, a.slots[idx], Idle)
		a.free <- idx
	}

	a.enterDraining()

	// requests pipelined after the closing one are never answered
	for idx := range a.ready {
		ex := a.slots[idx]
		if ex.cancel != nil {
			ex.cancel()
		}

		ex.request.Body.Release()
		a.inflight.Add(-1)
	}

	if err := a.client.Close(); err != nil {
		a.logger.Debug("failed to close the connection", zap.Error(err))
	}

	a.transitionConn(Draining, Closed)
	a.logger.Debug("connection closed", zap.Int("served", a.served))
}

// respond awaits the outcome of the exchange and writes the response. It returns whether the
// connection may be kept alive.
func (a *Actor) respond(idx int, ex *exchange) (keepAlive bool) {
	err := ex.err
	var resp *http.Response
	if ex.err == nil {
		select {
		case out := <-ex.outcome:
			resp, err = out.response, out.err
			if ex.ctx.Err() != nil {
				// the outcome came along with the deadline
				resp, err = nil, status.ErrGatewayTimeout
			} else if resp == nil && err == nil {
				err = fmt.Errorf("%w: handler returned no response", status.ErrInternalServerError)
			}
		case <-ex.ctx.Done():
			err = status.ErrGatewayTimeout
			a.orphan(idx, ex)
		}

		ex.cancel()
	}

	a.transition(idx, ex, Writing)
	meta := ex.meta

	if err != nil {
		kind := status.KindOf(err)
		if kind == status.IOFailure {
			a.logger.Debug("closing the connection", zap.Error(err))
			return false
		}

		if kind.Fatal() || (kind == status.HandlerFailure && !ex.bodyConsumed()) {
			meta.KeepAlive = false
		}

		if ex.err == nil {
			a.logger.Debug("request failed", zap.String("path", ex.request.Path), zap.Error(err))
		}

		resp = a.onError(ex.request, err)
	}

	token, negotiated, codingErr := a.coding(ex, resp)
	switch {
	case codingErr == nil:
		meta.Coding, meta.Negotiated = token, negotiated
	case err == nil:
		resp = a.onError(ex.request, codingErr)
	default:
		// error responses are sent as is rather than being replaced by 406
	}

	keepAlive, err = a.serializer.Write(meta, resp)
	ex.request.Body.Release()
	if err != nil {
		a.logger.Warn("failed to write the response", zap.Error(err))
		return false
	}

	if !keepAlive {
		return false
	}

	<-ex.settled

	return ex.drainErr == nil
}

// coding decides on the content-coding of the response body.
func (a *Actor) coding(ex *exchange, resp *http.Response) (token string, negotiated bool, err error) {
	fields := resp.Reveal()

	switch {
	case !a.cfg.Codings.AutoCompress, fields.NoCompression, fields.Headers.Has("content-encoding"),
		!fields.Code.BodyAllowed(), ex.meta.Method == method.HEAD:
		return "", false, nil
	}

	size, sized := fields.Sized()
	if sized && size == 0 {
		return "", false, nil
	}

	if ex.codingErr != nil {
		return "", false, ex.codingErr
	}

	if ex.coding.Token == negotiate.Identity ||
		(sized && size < a.cfg.Codings.SmallBody && ex.coding.IdentityAcceptable) {
		return "", true, nil
	}

	return ex.coding.Token, true, nil
}

// orphan abandons the exchange whose handler has timed out. As the handler may still be
// referencing the request, the slot gets a fresh exchange.
func (a *Actor) orphan(idx int, ex *exchange) {
	ex.request.Body.Release()

	fresh := newExchange(a.cfg)
	fresh.state = Writing
	a.slots[idx] = fresh
}

// await marks whether the reader is waiting for the first byte of a new request. It reports
// whether the connection is being stopped.
func (a *Actor) await(awaiting bool) (stopping bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.awaiting = awaiting
	return a.stopping
}

// stop makes the actor stop reading new requests. Only a read awaiting a new request is
// interrupted, so requests already being received are still answered.
func (a *Actor) stop() {
	a.enterDraining()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopping = true
	if a.awaiting {
		a.client.Interrupt()
	}
}

func (a *Actor) shutdown() {
	close(a.done)
	a.cancel()
	a.client.Interrupt()
}

func (a *Actor) transition(idx int, ex *exchange, to State) {
	from := ex.state
	ex.state = to
	if a.observe != nil {
		a.observe(idx, from, to)
	}
}

func (a *Actor) enterDraining() {
	if a.draining.CompareAndSwap(false, true) {
		a.transitionConn(Idle, Draining)
	}
}

func (a *Actor) transitionConn(from, to State) {
	if a.observe != nil {
		a.observe(ConnSlot, from, to)
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}

	return addr.String()
}
