package http1

import (
	"bytes"
	"io"
	"strconv"

	"github.com/indigo-web/utils/uf"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/internal/hexconv"
	"github.com/zavakid/tiny-http/kv"
	"golang.org/x/net/http/httpguts"
)

type chunkedParserState uint8

const (
	eChunkLength chunkedParserState = iota
	eChunkLengthOWS
	eChunkExt
	eChunkLengthCR
	eChunkBody
	eChunkBodyDone
	eChunkBodyCRLF
	eChunkTrailer
	eChunkTrailerCRLF
	eChunkTrailerFieldLine
)

// maxChunkLengthDigits keeps the chunk length within uint64 regardless of the configured limit.
const maxChunkLengthDigits = 16

// maxChunkExtSize limits the extensions of a single chunk, as they aren't counted as the body.
const maxChunkExtSize = 4096

type chunkedParser struct {
	state        chunkedParserState
	lengthDigits uint8
	chunkLength  uint64
	extSize      int
	maxChunkSize uint64
	// trailer field lines are collected here, as they may come split
	line         []byte
	trailersSize int
	maxTrailers  int
	trailers     *kv.Storage
}

func newChunkedParser(maxChunkSize uint64, maxTrailersSize int) chunkedParser {
	return chunkedParser{
		state:        eChunkLength,
		maxChunkSize: maxChunkSize,
		maxTrailers:  maxTrailersSize,
	}
}

// Reset prepares the parser for a new body. Trailers are added to the storage, if it isn't nil.
func (c *chunkedParser) Reset(trailers *kv.Storage) {
	c.state = eChunkLength
	c.lengthDigits = 0
	c.chunkLength = 0
	c.extSize = 0
	c.line = c.line[:0]
	c.trailersSize = 0
	c.trailers = trailers
}

// Parse returns a chunk when it's ready, nil otherwise. io.EOF signals that the body is
// complete, in which case extra holds the bytes past the body.
func (c *chunkedParser) Parse(data []byte) (chunk, extra []byte, err error) {
	switch c.state {
	case eChunkLength:
		goto chunkLength
	case eChunkLengthOWS:
		goto chunkLengthOWS
	case eChunkExt:
		goto chunkExt
	case eChunkLengthCR:
		goto chunkLengthCR
	case eChunkBody:
		goto chunkBody
	case eChunkBodyDone:
		goto chunkBodyDone
	case eChunkBodyCRLF:
		goto chunkBodyCRLF
	case eChunkTrailer:
		goto trailer
	case eChunkTrailerCRLF:
		goto chunkTrailerCRLF
	case eChunkTrailerFieldLine:
		goto chunkTrailerFieldLine
	default:
		panic("unreachable code")
	}

chunkLength:
	for i := 0; i < len(data); i++ {
		switch char := data[i]; char {
		case '\r':
			if c.lengthDigits == 0 {
				return nil, nil, status.ErrBadChunk
			}

			data = data[i+1:]
			goto chunkLengthCR
		case '\n':
			if c.lengthDigits == 0 {
				return nil, nil, status.ErrBadChunk
			}

			data = data[i:]
			goto chunkLengthCR
		case ';':
			if c.lengthDigits == 0 {
				return nil, nil, status.ErrBadChunk
			}

			data = data[i+1:]
			goto chunkExt
		case ' ', '\t':
			if c.lengthDigits == 0 {
				return nil, nil, status.ErrBadChunk
			}

			data = data[i+1:]
			goto chunkLengthOWS
		default:
			val := hexconv.Halfbyte[char]
			if val == 0xFF {
				return nil, nil, status.ErrBadChunk
			}

			if c.lengthDigits++; c.lengthDigits > maxChunkLengthDigits {
				return nil, nil, status.ErrChunkTooLarge
			}

			c.chunkLength = (c.chunkLength << 4) | uint64(val)
			if c.chunkLength > c.maxChunkSize {
				return nil, nil, status.ErrChunkTooLarge
			}
		}
	}

	c.state = eChunkLength
	return nil, nil, nil

chunkLengthOWS:
	// whitespace after the length may only be followed by extensions or the line end
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case ' ', '\t':
			if c.extSize++; c.extSize > maxChunkExtSize {
				return nil, nil, status.ErrChunkTooLarge
			}
		case ';':
			data = data[i+1:]
			goto chunkExt
		case '\r':
			data = data[i+1:]
			goto chunkLengthCR
		case '\n':
			data = data[i:]
			goto chunkLengthCR
		default:
			return nil, nil, status.ErrBadChunk
		}
	}

	c.state = eChunkLengthOWS
	return nil, nil, nil

chunkExt:
	{
		// chunk extensions aren't supported, therefore ignored completely.
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			if c.extSize += len(data); c.extSize > maxChunkExtSize {
				return nil, nil, status.ErrChunkTooLarge
			}

			c.state = eChunkExt
			return nil, nil, nil
		}

		if c.extSize += boundary; c.extSize > maxChunkExtSize {
			return nil, nil, status.ErrChunkTooLarge
		}

		data = data[boundary+1:]
		goto chunkDispatch
	}

chunkLengthCR:
	if len(data) == 0 {
		c.state = eChunkLengthCR
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	data = data[1:]
	// fallthrough to chunkDispatch

chunkDispatch:
	c.lengthDigits = 0
	c.extSize = 0
	if c.chunkLength == 0 {
		goto trailer
	}

	goto chunkBody

chunkBody:
	{
		n := min(c.chunkLength, uint64(len(data)))
		c.chunkLength -= n
		chunk = data[:n]

		if c.chunkLength == 0 {
			c.state = eChunkBodyDone
		} else {
			c.state = eChunkBody
		}

		return chunk, data[n:], nil
	}

chunkBodyDone:
	if len(data) == 0 {
		c.state = eChunkBodyDone
		return nil, nil, nil
	}

	switch data[0] {
	case '\r':
		data = data[1:]
		goto chunkBodyCRLF
	case '\n':
		data = data[1:]
		goto chunkLength
	default:
		return nil, nil, status.ErrBadChunk
	}

chunkBodyCRLF:
	if len(data) == 0 {
		c.state = eChunkBodyCRLF
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	data = data[1:]
	goto chunkLength

trailer:
	if len(data) == 0 {
		c.state = eChunkTrailer
		return nil, nil, nil
	}

	switch data[0] {
	case '\r':
		data = data[1:]
		goto chunkTrailerCRLF
	case '\n':
		c.state = eChunkLength
		return nil, data[1:], io.EOF
	default:
		goto chunkTrailerFieldLine
	}

chunkTrailerCRLF:
	if len(data) == 0 {
		c.state = eChunkTrailerCRLF
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	c.state = eChunkLength
	return nil, data[1:], io.EOF

chunkTrailerFieldLine:
	{
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			if err = c.appendTrailer(data); err != nil {
				return nil, nil, err
			}

			c.state = eChunkTrailerFieldLine
			return nil, nil, nil
		}

		if err = c.appendTrailer(data[:boundary+1]); err != nil {
			return nil, nil, err
		}

		data = data[boundary+1:]
		if err = c.trailerField(stripCR(c.line[:len(c.line)-1])); err != nil {
			return nil, nil, err
		}

		c.line = c.line[:0]
		goto trailer
	}
}

func (c *chunkedParser) appendTrailer(data []byte) error {
	if c.trailersSize += len(data); c.trailersSize > c.maxTrailers {
		return status.ErrHeaderFieldsTooLarge
	}

	c.line = append(c.line, data...)
	return nil
}

func (c *chunkedParser) trailerField(line []byte) error {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return status.ErrBadChunk
	}

	key := uf.B2S(line[:colon])
	value := uf.B2S(trimOWS(line[colon+1:]))
	if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
		return status.ErrBadChunk
	}

	// fields not permitted in trailers are silently dropped
	if c.trailers != nil && httpguts.ValidTrailerHeader(key) {
		// the line buffer is reused, so the values must be copied
		c.trailers.Add(string(key), string(value))
	}

	return nil
}

var chunkZeroTrailer = []byte("0\r\n\r\n")

// ChunkedWriter encodes everything written into it using chunked transfer encoding. Every
// write makes up a chunk on its own, empty writes are ignored as otherwise they'd terminate
// the body. Close writes the last chunk, but doesn't close the underlying writer.
type ChunkedWriter struct {
	w    io.Writer
	head []byte
}

func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{
		w:    w,
		head: make([]byte, 0, 18),
	}
}

func (c *ChunkedWriter) Reset(w io.Writer) {
	c.w = w
}

func (c *ChunkedWriter) Write(b []byte) (n int, err error) {
	if len(b) == 0 {
		return 0, nil
	}

	c.head = strconv.AppendUint(c.head[:0], uint64(len(b)), 16)
	c.head = append(c.head, crlf...)
	if _, err = c.w.Write(c.head); err != nil {
		return 0, err
	}

	if n, err = c.w.Write(b); err != nil {
		return n, err
	}

	_, err = c.w.Write(crlf)
	return n, err
}

func (c *ChunkedWriter) Close() error {
	_, err := c.w.Write(chunkZeroTrailer)
	return err
}

var crlf = []byte("\r\n")
