package simple

import (
	"strings"

	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/http/method"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/router"
)

var _ router.Router = new(Router)

type methodsMap [method.Count + 1]router.Handler

type dynamicRoute struct {
	segments []string
	methods  methodsMap
}

// Router matches request paths exactly. Segments in form of {name} match any non-empty
// segment, the matched value is stored into request's Vars under the name. Static routes
// always take precedence over dynamic ones. HEAD requests fall back to GET handlers.
type Router struct {
	static  map[string]*methodsMap
	dynamic []*dynamicRoute
}

func New() *Router {
	return &Router{
		static: make(map[string]*methodsMap),
	}
}

// Handle registers the handler. Registering the same route twice overrides the previous one.
func (r *Router) Handle(m method.Method, path string, handler router.Handler) *Router {
	if !strings.Contains(path, "{") {
		methods, found := r.static[path]
		if !found {
			methods = new(methodsMap)
			r.static[path] = methods
		}

		methods[m] = handler
		return r
	}

	segments := split(path)
	for _, route := range r.dynamic {
		if equalSegments(route.segments, segments) {
			route.methods[m] = handler
			return r
		}
	}

	route := &dynamicRoute{segments: segments}
	route.methods[m] = handler
	r.dynamic = append(r.dynamic, route)

	return r
}

func (r *Router) Get(path string, handler router.HandlerFunc) *Router {
	return r.Handle(method.GET, path, handler)
}

func (r *Router) Post(path string, handler router.HandlerFunc) *Router {
	return r.Handle(method.POST, path, handler)
}

func (r *Router) Put(path string, handler router.HandlerFunc) *Router {
	return r.Handle(method.PUT, path, handler)
}

func (r *Router) Delete(path string, handler router.HandlerFunc) *Router {
	return r.Handle(method.DELETE, path, handler)
}

func (r *Router) Route(request *http.Request) (router.Handler, error) {
	if methods, found := r.static[request.Path]; found {
		return pick(methods, request.Method)
	}

	segments := split(request.Path)
	for _, route := range r.dynamic {
		if !match(route.segments, segments) {
			continue
		}

		handler, err := pick(&route.methods, request.Method)
		if err != nil {
			return nil, err
		}

		for i, segment := range route.segments {
			if isParam(segment) {
				request.Vars.Add(segment[1:len(segment)-1], segments[i])
			}
		}

		return handler, nil
	}

	return nil, status.ErrNotFound
}

func pick(methods *methodsMap, m method.Method) (router.Handler, error) {
	if int(m) >= len(methods) {
		return nil, status.ErrMethodNotAllowed
	}

	handler := methods[m]
	if handler == nil && m == method.HEAD {
		handler = methods[method.GET]
	}

	if handler == nil {
		return nil, status.ErrMethodNotAllowed
	}

	return handler, nil
}

func split(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func isParam(segment string) bool {
	return len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}'
}

func match(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}

	for i, segment := range pattern {
		if isParam(segment) {
			if len(segments[i]) == 0 {
				return false
			}

			continue
		}

		if segment != segments[i] {
			return false
		}
	}

	return true
}

func equalSegments(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
