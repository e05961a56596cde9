package http1

import (
	"fmt"
	"io"

	"github.com/zavakid/tiny-http/config"
	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/internal/tcp"
	"github.com/zavakid/tiny-http/kv"
)

// BodyDecoder reads message bodies off the client, exactly as framed. Only a single body may
// be read at a time, so it's reused across requests of a connection.
type BodyDecoder struct {
	sized   sizedBody
	chunked chunkedBody
}

func NewBodyDecoder(client tcp.Client, cfg *config.Config) *BodyDecoder {
	return &BodyDecoder{
		sized: sizedBody{client: client},
		chunked: chunkedBody{
			client: client,
			parser: newChunkedParser(cfg.Body.MaxChunkSize, cfg.Headers.MaxBytes),
			limit:  cfg.Body.MaxSize,
		},
	}
}

// Reset returns a fetcher of the request's body, or nil if the request has no body. Trailers
// of a chunked body are stored into the passed storage.
func (b *BodyDecoder) Reset(request *http.Request, trailers *kv.Storage) http.Fetcher {
	switch request.Encoding.Framing() {
	case http.Sized:
		b.sized.reset(request.Encoding.Length)
		return &b.sized
	case http.Chunked:
		b.chunked.reset(trailers)
		return &b.chunked
	default:
		return nil
	}
}

type sizedBody struct {
	client tcp.Client
	left   int64
	err    error
}

func (s *sizedBody) reset(length int64) {
	s.left = length
	s.err = nil
}

func (s *sizedBody) Fetch() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}

	data, err := s.client.Read()
	if err != nil {
		s.err = readErr(err)
		return nil, s.err
	}

	if int64(len(data)) < s.left {
		s.left -= int64(len(data))
		return data, nil
	}

	s.client.Pushback(data[s.left:])
	data = data[:s.left]
	s.left = 0
	s.err = io.EOF

	return data, io.EOF
}

type chunkedBody struct {
	client   tcp.Client
	parser   chunkedParser
	limit    uint64
	received uint64
	err      error
}

func (c *chunkedBody) reset(trailers *kv.Storage) {
	c.parser.Reset(trailers)
	c.received = 0
	c.err = nil
}

func (c *chunkedBody) Fetch() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}

	for {
		data, err := c.client.Read()
		if err != nil {
			c.err = readErr(err)
			return nil, c.err
		}

		if len(data) == 0 {
			continue
		}

		chunk, extra, err := c.parser.Parse(data)
		switch err {
		case nil, io.EOF:
		default:
			c.err = err
			return nil, err
		}

		c.client.Pushback(extra)

		if c.received += uint64(len(chunk)); c.received > c.limit {
			c.err = status.ErrBodyTooLarge
			return nil, c.err
		}

		if err == io.EOF {
			c.err = io.EOF
			return chunk, io.EOF
		}

		if len(chunk) > 0 {
			return chunk, nil
		}
	}
}

// readErr converts an error of reading the body off the client. The stream closed before the
// body ends means the body is truncated.
func readErr(err error) error {
	if err == io.EOF {
		return status.ErrTruncatedBody
	}

	return fmt.Errorf("%w: %w", status.ErrReadFailed, err)
}
