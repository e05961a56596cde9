package http1

import (
	"iter"
	"strings"

	"golang.org/x/net/http/httpguts"
)

func isTokenChar(char byte) bool {
	return httpguts.IsTokenRune(rune(char))
}

// isVisible reports whether the char is a printable US-ASCII character, space excluded.
func isVisible(char byte) bool {
	return char > 0x20 && char < 0x7f
}

func stripCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}

	return b
}

func isOWS(char byte) bool {
	return char == ' ' || char == '\t'
}

func trimOWS(b []byte) []byte {
	for len(b) > 0 && isOWS(b[0]) {
		b = b[1:]
	}

	for len(b) > 0 && isOWS(b[len(b)-1]) {
		b = b[:len(b)-1]
	}

	return b
}

func trimOWSString(s string) string {
	for len(s) > 0 && isOWS(s[0]) {
		s = s[1:]
	}

	for len(s) > 0 && isOWS(s[len(s)-1]) {
		s = s[:len(s)-1]
	}

	return s
}

// tokens iterates over non-empty elements of a comma-separated list. Parameters, if any,
// are cut off.
func tokens(value string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for len(value) > 0 {
			var token string
			token, value, _ = strings.Cut(value, ",")
			token, _, _ = strings.Cut(token, ";")
			if token = trimOWSString(token); len(token) == 0 {
				continue
			}

			if !yield(token) {
				return
			}
		}
	}
}

func splitQuery(target string) (path, query string) {
	path, query, _ = strings.Cut(target, "?")
	return path, query
}

// absolutePath extracts the path from an absolute-form request target, e.g.
// http://example.com/path?query. The path defaults to / if it's omitted.
func absolutePath(target string) (string, bool) {
	scheme, rest, found := strings.Cut(target, "://")
	if !found || len(scheme) == 0 || len(rest) == 0 {
		return "", false
	}

	for i := 0; i < len(scheme); i++ {
		switch char := scheme[i]; {
		case 'a' <= char && char <= 'z', 'A' <= char && char <= 'Z':
		case i > 0 && ('0' <= char && char <= '9' || char == '+' || char == '-' || char == '.'):
		default:
			return "", false
		}
	}

	boundary := strings.IndexAny(rest, "/?")
	switch {
	case boundary == 0:
		// empty authority
		return "", false
	case boundary == -1:
		return "/", true
	case rest[boundary] == '?':
		return "/" + rest[boundary:], true
	default:
		return rest[boundary:], true
	}
}
