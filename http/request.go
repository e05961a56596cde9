package http

import (
	"context"
	"net"
	"slices"

	"github.com/zavakid/tiny-http/http/method"
	"github.com/zavakid/tiny-http/http/proto"
	"github.com/zavakid/tiny-http/kv"
	"golang.org/x/net/http/httpguts"
)

type (
	Headers = *kv.Storage
	Header  = kv.Pair
	Vars    = *kv.Storage
)

// Framing is how the message body length is determined.
type Framing uint8

const (
	// NoBody means neither Content-Length nor Transfer-Encoding are present.
	NoBody Framing = iota
	// Sized bodies are delimited by Content-Length.
	Sized
	// Chunked bodies use chunked transfer encoding.
	Chunked
)

// Encoding describes how the request body is encoded on the wire.
type Encoding struct {
	// Transfer holds transfer codings in order of application, chunked included.
	Transfer []string
	// Content holds content codings in order of application. Identity is omitted.
	Content []string
	// Length is the value of Content-Length. Only meaningful if HasLength is set.
	Length    int64
	HasLength bool
	Chunked   bool
}

// Framing returns the body framing the encoding implies.
func (e Encoding) Framing() Framing {
	switch {
	case e.Chunked:
		return Chunked
	case e.HasLength && e.Length > 0:
		return Sized
	default:
		return NoBody
	}
}

// Request represents HTTP request
type Request struct {
	// Method is an enum representing the request method.
	Method method.Method
	// Target is the raw request-target, exactly as received.
	Target string
	// Path is the request-target up to the query, not decoded.
	Path string
	// Query is the raw query string, without the leading question mark.
	Query string
	// Vars are dynamic routing segments.
	Vars Vars
	// Protocol is the HTTP version of the request.
	Protocol proto.Proto
	// Headers holds non-normalized header pairs, even though lookup is case-insensitive.
	Headers Headers
	// Encoding describes the body framing and content codings.
	Encoding Encoding
	// ContentType is the value of the Content-Type header.
	ContentType string
	// Connection is the value of the Connection header.
	Connection string
	// Remote holds the remote address. Please note that this is generally not a good parameter
	// to identify a user, because there might be proxies in the middle.
	Remote net.Addr
	// Ctx is cancelled as soon as the request is timed out or the connection is closed.
	Ctx context.Context
	// Body is a dedicated entity providing access to the message body.
	Body *Body
}

func NewRequest(headers, vars *kv.Storage, body *Body) *Request {
	return &Request{
		Method:   method.Unknown,
		Protocol: proto.HTTP11,
		Headers:  headers,
		Vars:     vars,
		Ctx:      context.Background(),
		Body:     body,
	}
}

// Respond returns a new response builder.
func (r *Request) Respond() *Response {
	return NewResponse()
}

// KeepAlive reports whether the client is willing to keep the connection open after the
// request is served.
func (r *Request) KeepAlive() bool {
	values := r.connectionTokens()

	switch r.Protocol {
	case proto.HTTP11:
		return !httpguts.HeaderValuesContainsToken(values, "close")
	case proto.HTTP10:
		return httpguts.HeaderValuesContainsToken(values, "keep-alive") &&
			!httpguts.HeaderValuesContainsToken(values, "close")
	default:
		return false
	}
}

func (r *Request) connectionTokens() []string {
	if r.Headers == nil || !r.Headers.Has("connection") {
		if len(r.Connection) == 0 {
			return nil
		}

		return []string{r.Connection}
	}

	return slices.Collect(r.Headers.Values("connection"))
}

// Reset the request
func (r *Request) Reset() {
	r.Method = method.Unknown
	r.Target, r.Path, r.Query = "", "", ""
	r.Protocol = proto.Unknown
	r.Headers.Clear()
	r.Vars.Clear()
	r.Encoding = Encoding{
		Transfer: r.Encoding.Transfer[:0],
		Content:  r.Encoding.Content[:0],
	}
	r.ContentType = ""
	r.Connection = ""
	r.Ctx = context.Background()
}
