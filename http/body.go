package http

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
	"github.com/valyala/bytebufferpool"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/kv"
)

// Fetcher is a lazy forward-only sequence of byte chunks. The returned chunk is valid until the
// next call. io.EOF may come along with the last chunk.
type Fetcher interface {
	Fetch() ([]byte, error)
}

// ErrReleased is returned when reading a body of a request, whose processing is over, e.g.
// because the handler has timed out.
var ErrReleased = errors.New("request body is not available anymore")

type BodyCallback func([]byte) error

// Body is the request's message body. It can be consumed exactly once, either piece by piece
// (Fetch, Read, Callback) or at once (Bytes, String, JSON). Methods are safe to be called
// concurrently, however there's hardly any reason to.
type Body struct {
	mu          sync.Mutex
	raw         Fetcher
	source      Fetcher
	limit       uint64
	received    uint64
	pending     []byte
	err         error
	buff        *bytebufferpool.ByteBuffer
	trailers    *kv.Storage
	contentType string
	finished    chan struct{}
	finishOnce  *sync.Once
	released    atomic.Bool
}

// NewBody returns an empty body, already finished.
func NewBody() *Body {
	b := new(Body)
	b.Reset(nil, nil, 0, nil, "")
	return b
}

// Reset prepares the body for a new request. The raw fetcher delivers the message body exactly
// as framed on the wire, while the source is what the consumer reads, e.g. a decompressor on top
// of raw. Nil raw means there's no body. The limit applies to the bytes seen by consumer.
func (b *Body) Reset(raw, source Fetcher, limit uint64, trailers *kv.Storage, contentType string) {
	if b.buff != nil {
		bytebufferpool.Put(b.buff)
	}

	*b = Body{
		raw:         raw,
		source:      source,
		limit:       limit,
		trailers:    trailers,
		contentType: contentType,
		finished:    make(chan struct{}),
		finishOnce:  new(sync.Once),
	}

	if raw == nil {
		b.err = io.EOF
		b.finish()
	} else if source == nil {
		b.source = raw
	}
}

// Fetch returns the next piece of the body. When the body is over, io.EOF is returned.
func (b *Body) Fetch() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.fetch()
}

func (b *Body) fetch() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.released.Load() {
		b.err = ErrReleased
		return nil, b.err
	}

	data, err := b.source.Fetch()
	b.received += uint64(len(data))
	if b.received > b.limit {
		err = status.ErrBodyTooLarge
		data = nil
	}

	if err != nil {
		b.err = err
		b.finish()
	}

	return data, err
}

// Read implements the io.Reader interface.
func (b *Body) Read(into []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 && b.err == nil {
		b.pending, _ = b.fetch()
	}

	n = copy(into, b.pending)
	b.pending = b.pending[n:]

	if len(b.pending) == 0 && b.err != nil {
		err = b.err
	}

	return n, err
}

// Callback invokes the callback every time as there's a piece of body available
// for reading. If the callback returns an error, it'll be passed back to the caller.
func (b *Body) Callback(cb BodyCallback) error {
	for {
		data, err := b.Fetch()
		if len(data) > 0 {
			if cbErr := cb(data); cbErr != nil {
				return cbErr
			}
		}

		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}

// Bytes returns the whole body at once in a byte representation. The returned slice is valid
// for as long as the request is.
func (b *Body) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buff != nil {
		return b.buff.B, b.result()
	}

	b.buff = bytebufferpool.Get()
	b.buff.B = append(b.buff.B, b.pending...)
	b.pending = nil

	for b.err == nil {
		data, _ := b.fetch()
		b.buff.B = append(b.buff.B, data...)
	}

	return b.buff.B, b.result()
}

// String returns the whole body at once in a string representation.
func (b *Body) String() (string, error) {
	data, err := b.Bytes()
	return uf.B2S(data), err
}

// JSON reads the whole body and unmarshalls it into the model. Requests with Content-Type
// other than application/json are rejected with status.ErrUnsupportedMediaType.
func (b *Body) JSON(model any) error {
	if len(b.contentType) > 0 && !isJSON(b.contentType) {
		return status.NewError(status.UnsupportedMediaType, "unsupported media type")
	}

	data, err := b.Bytes()
	if err != nil {
		return err
	}

	iterator := json.ConfigDefault.BorrowIterator(data)
	iterator.ReadVal(model)
	err = iterator.Error
	json.ConfigDefault.ReturnIterator(iterator)

	return err
}

// Discard reads the rest of the body (if any) and throws it away.
func (b *Body) Discard() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = nil
	for b.err == nil {
		_, _ = b.fetch()
	}

	return b.result()
}

// Trailers returns trailer fields sent along with a chunked body. They're available only after
// the body was fully read.
func (b *Body) Trailers() *kv.Storage {
	if b.trailers == nil {
		b.trailers = kv.New()
	}

	return b.trailers
}

// Error returns a previously encountered error, if any. io.EOF isn't considered an error.
func (b *Body) Error() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.result()
}

func (b *Body) result() error {
	if b.err == io.EOF {
		return nil
	}

	return b.err
}

func (b *Body) finish() {
	b.finishOnce.Do(func() {
		close(b.finished)
	})
}

// Finished is closed as soon as the body is either consumed, failed or released.
func (b *Body) Finished() <-chan struct{} {
	return b.finished
}

// Release revokes the consumer's access to the body. Calls following the release return
// ErrReleased. A read being in progress isn't interrupted.
func (b *Body) Release() {
	b.released.Store(true)
	b.finish()
}

// Consumed reports whether the body was read till the end.
func (b *Body) Consumed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.err == io.EOF
}

// Drain reads the rest of the message off the wire, so the stream is positioned at the
// beginning of the next message. It's done regardless of the consumer's progress, so partially
// consumed and compressed bodies are drained too.
func (b *Body) Drain() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.raw == nil {
		return nil
	}

	for {
		_, err := b.raw.Fetch()
		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}

func isJSON(contentType string) bool {
	const mime = "application/json"

	return len(contentType) >= len(mime) && strcomp.EqualFold(contentType[:len(mime)], mime)
}
