package router

import (
	"github.com/zavakid/tiny-http/http"
)

// Handler accepts a request and produces exactly one outcome: either a response or an error.
// It may block, in which case the request's context tells when the result isn't awaited anymore.
type Handler interface {
	Serve(request *http.Request) (*http.Response, error)
}

// HandlerFunc is an adapter allowing ordinary functions to be used as handlers.
type HandlerFunc func(request *http.Request) (*http.Response, error)

func (h HandlerFunc) Serve(request *http.Request) (*http.Response, error) {
	return h(request)
}

// Router resolves the request onto a handler, filling the request's Vars with path parameters.
// Unresolvable requests are signalled with status.ErrNotFound or status.ErrMethodNotAllowed,
// though any other error is fine as well.
type Router interface {
	Route(request *http.Request) (Handler, error)
}

// ErrorHandler renders an error into a response. It's called for protocol errors, routing
// errors and handler failures alike, so the request may be incomplete.
type ErrorHandler func(request *http.Request, err error) *http.Response

// DefaultErrorHandler responds with the error's status code and its message as a plain text.
// Internal details of errors which aren't status.HTTPError are never revealed.
func DefaultErrorHandler(request *http.Request, err error) *http.Response {
	return http.Error(request, err)
}
