package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/http/status"
)

var _ Codec = baseCodec{}

type instantiator = func() Instance

type baseCodec struct {
	token   string
	newInst instantiator
}

func newBaseCodec(token string, newInst instantiator) baseCodec {
	return baseCodec{
		token:   token,
		newInst: newInst,
	}
}

func (b baseCodec) Token() string {
	return b.token
}

func (b baseCodec) New() Instance {
	return b.newInst()
}

var _ Instance = new(baseInstance)

type (
	// decoderResetter points the decoder to the new source. The decoder is nil if it wasn't
	// instantiated yet, in which case a new one is returned.
	decoderResetter = func(decoder io.Reader, src io.Reader) (io.Reader, error)

	encoder interface {
		io.WriteCloser
		Flush() error
		Reset(dst io.Writer)
	}
)

type baseInstance struct {
	reset   decoderResetter
	adapter *readerAdapter
	w       encoder   // compressor
	r       io.Reader // decompressor
	buff    []byte
}

func newBaseInstance(newEncoder func() encoder, reset decoderResetter) instantiator {
	return func() Instance {
		return &baseInstance{
			reset:   reset,
			adapter: new(readerAdapter),
			w:       newEncoder(),
		}
	}
}

func (b *baseInstance) ResetCompressor(w io.Writer) {
	b.w.Reset(w)
}

func (b *baseInstance) Write(p []byte) (n int, err error) {
	return b.w.Write(p)
}

func (b *baseInstance) Flush() error {
	return b.w.Flush()
}

func (b *baseInstance) Close() error {
	return b.w.Close()
}

func (b *baseInstance) ResetDecompressor(source http.Fetcher, bufferSize int) (err error) {
	if cap(b.buff) < bufferSize {
		b.buff = make([]byte, bufferSize)
	}

	b.buff = b.buff[:cap(b.buff)]
	b.adapter.Reset(source)
	b.r, err = b.reset(b.r, b.adapter)

	return b.adapter.wrap(err)
}

func (b *baseInstance) Fetch() ([]byte, error) {
	n, err := b.r.Read(b.buff)
	return b.buff[:n], b.adapter.wrap(err)
}

// readerAdapter turns a http.Fetcher into an io.Reader. It also remembers errors coming from
// the source, so they can be told apart from errors of the decoder itself.
type readerAdapter struct {
	fetcher   http.Fetcher
	err       error
	data      []byte
	sourceEOF bool
}

func (r *readerAdapter) Read(b []byte) (n int, err error) {
	if len(r.data) == 0 {
		if r.err != nil {
			return 0, r.err
		}

		r.data, r.err = r.fetcher.Fetch()
		r.sourceEOF = r.err == io.EOF
	}

	n = copy(b, r.data)
	r.data = r.data[n:]
	if len(r.data) == 0 {
		err = r.err
	}

	return n, err
}

func (r *readerAdapter) Reset(fetcher http.Fetcher) {
	*r = readerAdapter{fetcher: fetcher}
}

// wrap classifies the decoder's error. Errors of the source are passed through as is,
// whereas everything else means the encoded data is corrupted.
func (r *readerAdapter) wrap(err error) error {
	switch {
	case err == nil, err == io.EOF:
		return err
	case r.err != nil && !r.sourceEOF && errors.Is(err, r.err):
		return err
	default:
		return fmt.Errorf("%w: %s", status.ErrCorruptedEncoding, err)
	}
}
