package http1

import (
	"fmt"
	"io"
	"strconv"

	"github.com/indigo-web/utils/strcomp"
	"github.com/valyala/bytebufferpool"
	"github.com/zavakid/tiny-http/config"
	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/http/codec"
	"github.com/zavakid/tiny-http/http/method"
	"github.com/zavakid/tiny-http/http/proto"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/internal/codecutil"
	"github.com/zavakid/tiny-http/internal/response"
	"github.com/zavakid/tiny-http/internal/tcp"
	"github.com/zavakid/tiny-http/internal/timer"
	"golang.org/x/net/http/httpguts"
)

// Meta describes the exchange a response is written for.
type Meta struct {
	Protocol proto.Proto
	Method   method.Method
	// KeepAlive is whether the connection is intended to stay open after the response.
	KeepAlive bool
	// Coding is the content-coding to be applied to the body. Empty means none.
	Coding string
	// Negotiated marks responses whose representation depends on Accept-Encoding.
	Negotiated bool
}

// Serializer writes responses onto the client. Small responses are written in a single call,
// bigger ones are flushed as soon as the buffer reaches its maximal size. Streamed bodies are
// flushed piece by piece, as they're read from the stream.
type Serializer struct {
	cfg            *config.Config
	client         tcp.Client
	codecs         *codecutil.Cache
	buff           *bytebufferpool.ByteBuffer
	err            error
	streamBuff     []byte
	chunked        *ChunkedWriter
	defaultHeaders defaultHeaders
}

func NewSerializer(cfg *config.Config, client tcp.Client, codecs *codecutil.Cache) *Serializer {
	s := &Serializer{
		cfg:            cfg,
		client:         client,
		codecs:         codecs,
		streamBuff:     make([]byte, cfg.HTTP.StreamBufferSize),
		defaultHeaders: preprocessDefaultHeaders(cfg.Headers.Default, codecs.Tokens()),
	}
	s.chunked = NewChunkedWriter(bufferedWriter{s})

	return s
}

// Write serializes the response. The returned keepAlive may differ from the intended one, as
// some responses can't be delimited otherwise than by closing the connection. Errors returned
// always mean the connection must be closed.
func (s *Serializer) Write(meta Meta, resp *http.Response) (keepAlive bool, err error) {
	fields := resp.Reveal()
	keepAlive = meta.KeepAlive && !wantsClose(fields)

	s.buff = bytebufferpool.Get()
	s.err = nil
	defer func() {
		bytebufferpool.Put(s.buff)
		s.buff = nil
		s.defaultHeaders.Reset()
	}()

	defer closeStream(fields.Stream)

	bodyAllowed := fields.Code.BodyAllowed()
	var compressor codec.Compressor
	if bodyAllowed {
		compressor = s.compressor(meta.Coding)
	}

	var (
		body    []byte
		length  int64 = -1
		chunked bool
	)

	switch {
	case !bodyAllowed:
	case fields.Stream == nil:
		body = fields.Body
		if compressor != nil {
			scratch := bytebufferpool.Get()
			defer bytebufferpool.Put(scratch)

			if body, err = compress(compressor, scratch, body); err != nil {
				return false, err
			}
		}

		length = int64(len(body))
	case compressor == nil && fields.StreamSize >= 0:
		length = fields.StreamSize
	case meta.Protocol != proto.HTTP10:
		chunked = true
	default:
		// chunked encoding is unknown to HTTP/1.0 peers, so the only way to mark the end of
		// the body is to close the connection
		keepAlive = false
	}

	s.appendProtocol(meta.Protocol)
	s.appendStatus(fields)
	s.appendHeaders(fields, bodyAllowed)

	if compressor != nil {
		s.appendKnownHeader("Content-Encoding: ", meta.Coding)
	}

	if meta.Negotiated && !fields.Headers.Has("vary") {
		s.appendKnownHeader("Vary: ", "Accept-Encoding")
	}

	if length >= 0 {
		s.appendContentLength(length)
	} else if chunked {
		s.appendKnownHeader("Transfer-Encoding: ", "chunked")
	}

	if keepAlive {
		s.appendKnownHeader("Connection: ", "keep-alive")
	} else {
		s.appendKnownHeader("Connection: ", "close")
	}

	s.crlf()

	switch {
	case !bodyAllowed, meta.Method == method.HEAD:
	case fields.Stream == nil:
		s.write(body)
	default:
		if err = s.stream(fields.Stream, compressor, chunked, length); err != nil {
			return false, err
		}
	}

	return keepAlive, s.flush()
}

func (s *Serializer) compressor(token string) codec.Compressor {
	if len(token) == 0 || strcomp.EqualFold(token, "identity") {
		return nil
	}

	if inst := s.codecs.Get(token); inst != nil {
		return inst
	}

	return nil
}

func compress(compressor codec.Compressor, dst *bytebufferpool.ByteBuffer, body []byte) ([]byte, error) {
	compressor.ResetCompressor(dst)
	if _, err := compressor.Write(body); err != nil {
		return nil, err
	}

	if err := compressor.Close(); err != nil {
		return nil, err
	}

	return dst.B, nil
}

// stream copies the stream onto the wire, flushing every piece as soon as it's read.
func (s *Serializer) stream(src io.Reader, compressor codec.Compressor, chunked bool, length int64) error {
	var encoder io.Writer = bufferedWriter{s}
	if chunked {
		encoder = s.chunked
	}

	if compressor != nil {
		compressor.ResetCompressor(encoder)
		encoder = compressor
	}

	var written int64

	for length < 0 || written < length {
		n, rerr := src.Read(s.streamBuff)
		if length >= 0 {
			// excess of the stream is never written, as it would corrupt the next response
			n = int(min(int64(n), length-written))
		}

		if n > 0 {
			written += int64(n)

			if _, err := encoder.Write(s.streamBuff[:n]); err != nil {
				return s.writeErr(err)
			}

			if compressor != nil {
				if err := compressor.Flush(); err != nil {
					return s.writeErr(err)
				}
			}

			if err := s.flush(); err != nil {
				return err
			}
		}

		switch rerr {
		case nil:
		case io.EOF:
			if length >= 0 && written < length {
				return fmt.Errorf(
					"%w: stream ended after %d bytes out of %d", status.ErrCloseConnection, written, length,
				)
			}

			return s.finishStream(compressor, chunked)
		default:
			return fmt.Errorf("%w: reading response stream: %w", status.ErrCloseConnection, rerr)
		}
	}

	return s.finishStream(compressor, chunked)
}

func (s *Serializer) finishStream(compressor codec.Compressor, chunked bool) error {
	if compressor != nil {
		if err := compressor.Close(); err != nil {
			return s.writeErr(err)
		}
	}

	if chunked {
		if err := s.chunked.Close(); err != nil {
			return s.writeErr(err)
		}
	}

	return nil
}

// write appends the data to the buffer, flushing it if the buffer reaches its maximal size.
func (s *Serializer) write(data []byte) {
	for len(data) > 0 && s.err == nil {
		free := s.cfg.NET.WriteBufferSize.Maximal - s.buff.Len()
		if free <= 0 {
			_ = s.flush()
			continue
		}

		n := min(free, len(data))
		s.buff.B = append(s.buff.B, data[:n]...)
		data = data[n:]
	}
}

func (s *Serializer) flush() error {
	if s.err != nil {
		return s.err
	}

	if s.buff.Len() > 0 {
		if err := s.client.Write(s.buff.B); err != nil {
			s.err = fmt.Errorf("%w: %w", status.ErrWriteFailed, err)
		}

		s.buff.Reset()
	}

	return s.err
}

func (s *Serializer) writeErr(err error) error {
	if s.err != nil {
		return s.err
	}

	return fmt.Errorf("%w: %w", status.ErrWriteFailed, err)
}

func (s *Serializer) appendProtocol(protocol proto.Proto) {
	if protocol == proto.Unknown {
		// in case the request line was malformed, parser had no chance of reaching the
		// protocol, thereby resulting in the unknown one.
		protocol = proto.HTTP11
	}

	s.buff.B = append(s.buff.B, protocol.String()...)
	s.sp()
}

func (s *Serializer) appendStatus(fields *response.Fields) {
	s.buff.B = append(s.buff.B, status.StringCode(fields.Code)...)
	s.sp()

	statusText := fields.Status
	if len(statusText) == 0 {
		statusText = status.Text(fields.Code)
	}

	s.buff.B = append(s.buff.B, statusText...)
	s.crlf()
}

func (s *Serializer) appendHeaders(fields *response.Fields, bodyAllowed bool) {
	for key, value := range fields.Headers.Pairs() {
		if isFramingHeader(key) {
			continue
		}

		// headers that would break the message are dropped
		if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
			continue
		}

		s.defaultHeaders.Exclude(key)
		s.buff.B = append(s.buff.B, key...)
		s.colonsp()
		s.buff.B = append(s.buff.B, value...)
		s.crlf()
	}

	if bodyAllowed && len(fields.ContentType) > 0 {
		s.appendKnownHeader("Content-Type: ", fields.ContentType)
	}

	for _, header := range s.defaultHeaders {
		if !header.Excluded {
			s.buff.B = append(s.buff.B, header.Full...)
		}
	}

	if !fields.Headers.Has("date") {
		s.appendKnownHeader("Date: ", timer.Date())
	}
}

func isFramingHeader(key string) bool {
	switch len(key) {
	case 10:
		return strcomp.EqualFold(key, "connection")
	case 14:
		return strcomp.EqualFold(key, "content-length")
	case 17:
		return strcomp.EqualFold(key, "transfer-encoding")
	default:
		return false
	}
}

func wantsClose(fields *response.Fields) bool {
	for value := range fields.Headers.Values("connection") {
		if httpguts.HeaderValuesContainsToken([]string{value}, "close") {
			return true
		}
	}

	return false
}

// appendKnownHeader differs from appending a header pair only by the fact that the key is known
// to already have a colon and a space included.
func (s *Serializer) appendKnownHeader(key, value string) {
	s.buff.B = append(s.buff.B, key...)
	s.buff.B = append(s.buff.B, value...)
	s.crlf()
}

func (s *Serializer) appendContentLength(value int64) {
	s.buff.B = append(s.buff.B, "Content-Length: "...)
	s.buff.B = strconv.AppendInt(s.buff.B, value, 10)
	s.crlf()
}

func (s *Serializer) sp() {
	s.buff.B = append(s.buff.B, ' ')
}

func (s *Serializer) colonsp() {
	s.buff.B = append(s.buff.B, ':', ' ')
}

func (s *Serializer) crlf() {
	s.buff.B = append(s.buff.B, crlf...)
}

func closeStream(stream io.Reader) {
	if closer, ok := stream.(io.Closer); ok {
		_ = closer.Close()
	}
}

// bufferedWriter exposes the serializer's buffer as io.Writer.
type bufferedWriter struct {
	s *Serializer
}

func (b bufferedWriter) Write(p []byte) (int, error) {
	b.s.write(p)
	if b.s.err != nil {
		return 0, b.s.err
	}

	return len(p), nil
}

func preprocessDefaultHeaders(headers map[string]string, codings []string) defaultHeaders {
	processed := make(defaultHeaders, 0, len(headers)+1)

	for key, value := range headers {
		serialized := key + ": " + value + string(crlf)
		processed = append(processed, defaultHeader{
			// we let the GC release all the values of the map, as here we're using only
			// the brand-new line without keeping the original string
			Key:  serialized[:len(key)],
			Full: serialized,
		})
	}

	if len(codings) > 0 {
		acceptEncoding := codings[0]
		for _, token := range codings[1:] {
			acceptEncoding += ", " + token
		}

		processed = append(processed, defaultHeader{
			Key:  "Accept-Encoding",
			Full: "Accept-Encoding: " + acceptEncoding + string(crlf),
		})
	}

	return processed
}

type defaultHeader struct {
	Excluded bool
	Key      string
	Full     string
}

type defaultHeaders []defaultHeader

func (d defaultHeaders) Exclude(key string) {
	for i, header := range d {
		if strcomp.EqualFold(header.Key, key) {
			d[i].Excluded = true
			return
		}
	}
}

func (d defaultHeaders) Reset() {
	for i := range d {
		d[i].Excluded = false
	}
}
