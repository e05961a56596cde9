package response

import (
	"io"

	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/kv"
)

const DefaultContentType = "text/plain; charset=utf-8"

// Fields is what a response builder has gathered. Stream takes precedence over Body.
type Fields struct {
	Code        status.Code
	Status      status.Status
	ContentType string
	Headers     *kv.Storage
	Body        []byte
	Stream      io.Reader
	// StreamSize is the exact length of the Stream, or -1 if unknown.
	StreamSize int64
	// NoCompression disables content-coding negotiation for the response.
	NoCompression bool
}

func New() *Fields {
	f := &Fields{Headers: kv.NewPrealloc(7)}
	f.Clear()
	return f
}

func (f *Fields) Clear() {
	f.Code = status.OK
	f.Status = ""
	f.ContentType = DefaultContentType
	f.Headers.Clear()
	f.Body = nil
	f.Stream = nil
	f.StreamSize = -1
	f.NoCompression = false
}

// Sized reports whether the body length is known in advance and returns it.
func (f *Fields) Sized() (size int64, ok bool) {
	if f.Stream == nil {
		return int64(len(f.Body)), true
	}

	return f.StreamSize, f.StreamSize >= 0
}
