package status

import "errors"

// Kind classifies an error by the way the connection must react to it.
type Kind uint8

const (
	// KindUnknown is assigned to errors not produced by the protocol engine, e.g. plain errors
	// returned by handlers. They are treated as handler failures.
	KindUnknown Kind = iota
	// ParseError is a malformed request head. The connection is closed after the response.
	ParseError
	// LimitExceeded means some configured limit was hit. The connection is closed after the
	// response.
	LimitExceeded
	// FramingMismatch means the body framing can't be determined unambiguously or is broken.
	FramingMismatch
	// NegotiationFailed means no acceptable content-coding exists. The connection may stay alive.
	NegotiationFailed
	// HandlerFailure is an error or a timeout of the handler. The connection may stay alive if
	// the request body was fully consumed.
	HandlerFailure
	// IOFailure is an unusable stream. Nothing is written, the connection is aborted.
	IOFailure
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "parse error"
	case LimitExceeded:
		return "limit exceeded"
	case FramingMismatch:
		return "framing mismatch"
	case NegotiationFailed:
		return "negotiation failed"
	case HandlerFailure:
		return "handler failure"
	case IOFailure:
		return "io failure"
	default:
		return "unknown"
	}
}

// Fatal reports whether the connection must be closed after an error of the kind.
func (k Kind) Fatal() bool {
	switch k {
	case ParseError, LimitExceeded, FramingMismatch, IOFailure:
		return true
	default:
		return false
	}
}

type HTTPError struct {
	Message string
	Code    Code
	Kind    Kind
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
		Kind:    HandlerFailure,
	}
}

func newKindError(kind Kind, code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
		Kind:    kind,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// CodeOf returns the status code the error must be answered with. Errors not being HTTPError
// are internal server errors.
func CodeOf(err error) Code {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	return InternalServerError
}

// KindOf classifies the error. Errors not being HTTPError are handler failures.
func KindOf(err error) Kind {
	var httpErr HTTPError
	if errors.As(err, &httpErr) && httpErr.Kind != KindUnknown {
		return httpErr.Kind
	}

	return HandlerFailure
}

// protocol errors
var (
	ErrBadRequest              = newKindError(ParseError, BadRequest, "bad request")
	ErrBadRequestLine          = newKindError(ParseError, BadRequest, "malformed request line")
	ErrMethodNotImplemented    = newKindError(ParseError, NotImplemented, "request method is not supported")
	ErrBadTarget               = newKindError(ParseError, BadRequest, "invalid request target")
	ErrBadHeader               = newKindError(ParseError, BadRequest, "invalid header syntax")
	ErrObsoleteFolding         = newKindError(ParseError, BadRequest, "obsolete line folding is not allowed")
	ErrHTTPVersionNotSupported = newKindError(ParseError, HTTPVersionNotSupported, "HTTP version not supported")
	ErrRequestTimeout          = newKindError(ParseError, RequestTimeout, "request timeout")

	ErrURITooLong           = newKindError(LimitExceeded, RequestURITooLong, "request line is too long")
	ErrHeaderFieldsTooLarge = newKindError(LimitExceeded, RequestHeaderFieldsTooLarge, "too large headers section")
	ErrTooManyHeaders       = newKindError(LimitExceeded, RequestHeaderFieldsTooLarge, "too many headers")
	ErrBodyTooLarge         = newKindError(LimitExceeded, RequestEntityTooLarge, "request body is too large")

	ErrFramingMismatch       = newKindError(FramingMismatch, BadRequest, "both Content-Length and Transfer-Encoding are set")
	ErrBadContentLength      = newKindError(FramingMismatch, BadRequest, "invalid Content-Length value")
	ErrBadChunk              = newKindError(FramingMismatch, BadRequest, "malformed chunk-encoded data")
	ErrChunkTooLarge         = newKindError(FramingMismatch, BadRequest, "chunk size exceeds the limit")
	ErrUnsupportedTransfer   = newKindError(FramingMismatch, NotImplemented, "transfer coding is not supported")
	ErrTruncatedBody         = newKindError(FramingMismatch, BadRequest, "request body is truncated")
	ErrCorruptedEncoding     = newKindError(FramingMismatch, BadRequest, "corrupted content-coding data")
	ErrUnsupportedEncoding   = newKindError(FramingMismatch, UnsupportedMediaType, "content-coding is not supported")
	ErrTooManyEncodingTokens = newKindError(FramingMismatch, BadRequest, "too many content-coding tokens")

	ErrNotAcceptable = newKindError(NegotiationFailed, NotAcceptable, "no acceptable content-coding")

	ErrGatewayTimeout      = newKindError(HandlerFailure, GatewayTimeout, "request handling timed out")
	ErrInternalServerError = newKindError(HandlerFailure, InternalServerError, "internal server error")

	ErrReadFailed      = newKindError(IOFailure, 0, "read failed")
	ErrWriteFailed     = newKindError(IOFailure, 0, "write failed")
	ErrCloseConnection = newKindError(IOFailure, 0, "actively closing the connection")
)

// errors, typically returned by handlers and routers
var (
	ErrNotFound            = NewError(NotFound, "not found")
	ErrMethodNotAllowed    = NewError(MethodNotAllowed, "method not allowed")
	ErrUnauthorized        = NewError(Unauthorized, "unauthorized")
	ErrForbidden           = NewError(Forbidden, "forbidden")
	ErrConflict            = NewError(Conflict, "conflict")
	ErrGone                = NewError(Gone, "gone")
	ErrLengthRequired      = NewError(LengthRequired, "length required")
	ErrUnprocessableEntity = NewError(UnprocessableEntity, "unprocessable entity")
	ErrTooManyRequests     = NewError(TooManyRequests, "too many requests")
	ErrTeapot              = NewError(Teapot, "i'm a teapot")
	ErrNotImplemented      = NewError(NotImplemented, "not implemented")
	ErrBadGateway          = NewError(BadGateway, "bad gateway")
	ErrServiceUnavailable  = NewError(ServiceUnavailable, "service unavailable")
)
