package http1

import (
	"bytes"
	"math"
	"strings"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	"github.com/zavakid/tiny-http/config"
	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/http/method"
	"github.com/zavakid/tiny-http/http/proto"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/internal/buffer"
	"github.com/zavakid/tiny-http/internal/hexconv"
	"golang.org/x/net/http/httpguts"
)

type parserState uint8

const (
	eRequestLine parserState = iota + 1
	eHeaderLine
)

// Parser is a resumable request head parser. Data is fed piece by piece as it arrives, the
// parser never looks at already processed bytes again. The request line and header lines are
// collected in the arena, so all the strings of the request refer to it.
type Parser struct {
	state         parserState
	cfg           *config.Config
	request       *http.Request
	arena         *buffer.Buffer
	lineSize      int
	headersSize   int
	headersNumber int
	hosts         int
}

func NewParser(cfg *config.Config) *Parser {
	return &Parser{
		cfg:   cfg,
		state: eRequestLine,
	}
}

// ArenaSize returns the maximal amount of memory a single request head may take in the arena.
func ArenaSize(cfg *config.Config) int {
	return cfg.URI.RequestLineSize.Maximal + cfg.Headers.MaxBytes
}

// Reset binds the parser to a new request. The arena must be at least ArenaSize large.
func (p *Parser) Reset(request *http.Request, arena *buffer.Buffer) {
	p.request = request
	p.arena = arena
	p.reset()
}

func (p *Parser) reset() {
	p.state = eRequestLine
	p.lineSize = 0
	p.headersSize = 0
	p.headersNumber = 0
	p.hosts = 0
}

// Parse consumes the data. As soon as the head is complete, done is set and extra holds the
// bytes following the terminating empty line. In case of an error done is set as well, the
// parser must be Reset before being used again.
func (p *Parser) Parse(data []byte) (done bool, extra []byte, err error) {
	arena := p.arena

	switch p.state {
	case eRequestLine:
		goto requestLine
	case eHeaderLine:
		goto headerLine
	default:
		panic("unreachable code")
	}

requestLine:
	{
		if arena.SegmentLength() == 0 {
			// empty lines preceding the request line are ignored
			for len(data) > 0 && (data[0] == '\r' || data[0] == '\n') {
				data = data[1:]
			}
		}

		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			p.lineSize += len(data)
			if p.lineSize > p.cfg.URI.RequestLineSize.Maximal || !arena.Append(data...) {
				return true, nil, status.ErrURITooLong
			}

			p.state = eRequestLine
			return false, nil, nil
		}

		p.lineSize += lf + 1
		if p.lineSize > p.cfg.URI.RequestLineSize.Maximal || !arena.Append(data[:lf]...) {
			return true, nil, status.ErrURITooLong
		}

		data = data[lf+1:]
		if err = p.parseRequestLine(stripCR(arena.Finish())); err != nil {
			return true, nil, err
		}
		// fallthrough to headerLine
	}

headerLine:
	for {
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			p.headersSize += len(data)
			if p.headersSize > p.cfg.Headers.MaxBytes || !arena.Append(data...) {
				return true, nil, status.ErrHeaderFieldsTooLarge
			}

			p.state = eHeaderLine
			return false, nil, nil
		}

		p.headersSize += lf + 1
		if p.headersSize > p.cfg.Headers.MaxBytes || !arena.Append(data[:lf]...) {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		data = data[lf+1:]
		line := stripCR(arena.Finish())
		if len(line) == 0 {
			err = p.complete()
			p.reset()
			if err != nil {
				return true, nil, err
			}

			return true, data, nil
		}

		if err = p.parseHeader(line); err != nil {
			return true, nil, err
		}
	}
}

func (p *Parser) parseRequestLine(line []byte) error {
	request := p.request

	sp := bytes.IndexByte(line, ' ')
	if sp <= 0 {
		return status.ErrBadRequestLine
	}

	token := line[:sp]
	for _, char := range token {
		if !isTokenChar(char) {
			return status.ErrBadRequestLine
		}
	}

	request.Method = method.Parse(uf.B2S(token))
	if request.Method == method.Unknown {
		return status.ErrMethodNotImplemented
	}

	line = line[sp+1:]
	sp = bytes.LastIndexByte(line, ' ')
	if sp == -1 {
		return status.ErrBadRequestLine
	}

	target, version := line[:sp], line[sp+1:]
	if !proto.Valid(version) {
		return status.ErrBadRequestLine
	}

	request.Protocol = proto.FromBytes(version)
	if request.Protocol == proto.Unknown {
		return status.ErrHTTPVersionNotSupported
	}

	return p.parseTarget(target)
}

func (p *Parser) parseTarget(target []byte) error {
	if len(target) == 0 {
		return status.ErrBadTarget
	}

	for i := 0; i < len(target); i++ {
		switch char := target[i]; {
		case char == '%':
			if i+2 >= len(target) || !hexconv.Is(target[i+1]) || !hexconv.Is(target[i+2]) {
				return status.ErrBadTarget
			}

			i += 2
		case char == '#', !isVisible(char):
			return status.ErrBadTarget
		}
	}

	request := p.request
	request.Target = uf.B2S(target)

	switch {
	case target[0] == '/':
		request.Path, request.Query = splitQuery(request.Target)
	case request.Target == "*":
		if request.Method != method.OPTIONS {
			return status.ErrBadTarget
		}

		request.Path = request.Target
	case request.Method == method.CONNECT:
		// authority-form
		if bytes.ContainsAny(target, "/?") {
			return status.ErrBadTarget
		}

		request.Path = request.Target
	default:
		path, ok := absolutePath(request.Target)
		if !ok {
			return status.ErrBadTarget
		}

		request.Path, request.Query = splitQuery(path)
	}

	return nil
}

func (p *Parser) parseHeader(line []byte) error {
	if line[0] == ' ' || line[0] == '\t' {
		return status.ErrObsoleteFolding
	}

	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return status.ErrBadHeader
	}

	key := uf.B2S(line[:colon])
	if !httpguts.ValidHeaderFieldName(key) {
		// whitespaces between the name and the colon are rejected here as well
		return status.ErrBadHeader
	}

	value := uf.B2S(trimOWS(line[colon+1:]))
	if !httpguts.ValidHeaderFieldValue(value) {
		return status.ErrBadHeader
	}

	if p.headersNumber++; p.headersNumber > p.cfg.Headers.Number.Maximal {
		return status.ErrTooManyHeaders
	}

	request := p.request
	request.Headers.Add(key, value)

	switch len(key) {
	case 4:
		if strcomp.EqualFold(key, "host") {
			p.hosts++
			if p.hosts > 1 || !httpguts.ValidHostHeader(value) {
				return status.ErrBadRequest
			}
		}
	case 10:
		if strcomp.EqualFold(key, "connection") && len(request.Connection) == 0 {
			request.Connection = value
		}
	case 12:
		if strcomp.EqualFold(key, "content-type") {
			request.ContentType = value
		}
	case 14:
		if strcomp.EqualFold(key, "content-length") {
			return p.contentLength(value)
		}
	case 16:
		if strcomp.EqualFold(key, "content-encoding") {
			return p.contentEncoding(value)
		}
	case 17:
		if strcomp.EqualFold(key, "transfer-encoding") {
			return p.transferEncoding(value)
		}
	}

	return nil
}

func (p *Parser) contentLength(value string) error {
	length, err := parseContentLength(value)
	if err != nil {
		return err
	}

	encoding := &p.request.Encoding
	if encoding.HasLength && encoding.Length != length {
		return status.ErrBadContentLength
	}

	encoding.Length = length
	encoding.HasLength = true

	return nil
}

// parseContentLength accepts a list of identical values, as some intermediaries merge
// repeated headers into a single one.
func parseContentLength(value string) (int64, error) {
	length := int64(-1)

	for len(value) > 0 {
		var token string
		token, value, _ = strings.Cut(value, ",")
		token = trimOWSString(token)
		if len(token) == 0 {
			return 0, status.ErrBadContentLength
		}

		var n int64
		for i := 0; i < len(token); i++ {
			char := token[i]
			if char < '0' || char > '9' {
				return 0, status.ErrBadContentLength
			}

			digit := int64(char - '0')
			if n > (math.MaxInt64-digit)/10 {
				return 0, status.ErrBadContentLength
			}

			n = n*10 + digit
		}

		if length != -1 && length != n {
			return 0, status.ErrBadContentLength
		}

		length = n
	}

	if length == -1 {
		return 0, status.ErrBadContentLength
	}

	return length, nil
}

func (p *Parser) transferEncoding(value string) error {
	encoding := &p.request.Encoding

	for token := range tokens(value) {
		if encoding.Chunked {
			// nothing may be applied over chunked, and chunked may be applied only once
			return status.ErrUnsupportedTransfer
		}

		if len(encoding.Transfer) >= p.cfg.Headers.MaxEncodingTokens {
			return status.ErrTooManyEncodingTokens
		}

		if !strcomp.EqualFold(token, "chunked") {
			return status.ErrUnsupportedTransfer
		}

		encoding.Transfer = append(encoding.Transfer, token)
		encoding.Chunked = true
	}

	return nil
}

func (p *Parser) contentEncoding(value string) error {
	encoding := &p.request.Encoding

	for token := range tokens(value) {
		if strcomp.EqualFold(token, "identity") {
			continue
		}

		if len(encoding.Content) >= p.cfg.Headers.MaxEncodingTokens {
			return status.ErrTooManyEncodingTokens
		}

		encoding.Content = append(encoding.Content, token)
	}

	return nil
}

// complete validates the head as a whole.
func (p *Parser) complete() error {
	request := p.request
	encoding := request.Encoding

	if encoding.HasLength && len(encoding.Transfer) > 0 {
		return status.ErrFramingMismatch
	}

	if request.Protocol == proto.HTTP11 && p.hosts == 0 {
		return status.ErrBadRequest
	}

	if encoding.HasLength && uint64(encoding.Length) > p.cfg.Body.MaxSize {
		return status.ErrBodyTooLarge
	}

	return nil
}
