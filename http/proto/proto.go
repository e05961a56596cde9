package proto

import "github.com/indigo-web/utils/uf"

type Proto uint8

const (
	Unknown Proto = 0
	HTTP10  Proto = 1 << iota
	HTTP11

	HTTP1 = HTTP10 | HTTP11
)

func (p Proto) String() string {
	switch p {
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	default:
		return ""
	}
}

const (
	protoTokenLength   = len("HTTP/x.x")
	majorVersionOffset = len("HTTP/x") - 1
	minorVersionOffset = len("HTTP/x.x") - 1
	httpScheme         = "HTTP/"
)

// Valid reports whether the token matches the HTTP-version grammar (HTTP/DIGIT.DIGIT),
// regardless of whether the version itself is supported.
func Valid(raw []byte) bool {
	return len(raw) == protoTokenLength &&
		uf.B2S(raw[:majorVersionOffset]) == httpScheme &&
		isDigit(raw[majorVersionOffset]) &&
		raw[majorVersionOffset+1] == '.' &&
		isDigit(raw[minorVersionOffset])
}

// FromBytes returns the protocol corresponding to the token, or Unknown if the token is either
// malformed or names an unsupported version.
func FromBytes(raw []byte) Proto {
	if !Valid(raw) {
		return Unknown
	}

	return Parse(raw[majorVersionOffset]-'0', raw[minorVersionOffset]-'0')
}

func Parse(major, minor uint8) Proto {
	if major != 1 {
		return Unknown
	}

	switch minor {
	case 0:
		return HTTP10
	case 1:
		return HTTP11
	default:
		return Unknown
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
