// Package negotiate implements content-coding negotiation driven by the Accept-Encoding
// request header.
package negotiate

import (
	"iter"
	"strings"

	"github.com/indigo-web/utils/strcomp"
	"github.com/zavakid/tiny-http/http/status"
	"golang.org/x/net/http/httpguts"
)

// Identity is what the selection results in if no coding is going to be applied.
const Identity = "identity"

// qualities are kept in thousandths, so comparing them is exact
const (
	qMax     = 1000
	qUnset   = -1
	wildcard = "*"
)

// tiebreak ranks well-known codings. Codings not listed here rank below them in order of their
// registration, but always above identity.
var tiebreak = []string{"br", "zstd", "gzip", "deflate"}

// Preference is a single entry of Accept-Encoding.
type Preference struct {
	Token   string
	Quality int
}

// Negotiator selects a content-coding out of supported ones. It isn't safe for concurrent use.
type Negotiator struct {
	supported []string
	maxTokens int
	prefs     []Preference
}

// New returns a negotiator for the supported codings. The order of supported codings doesn't
// matter. At most maxTokens entries of Accept-Encoding are considered.
func New(supported []string, maxTokens int) *Negotiator {
	return &Negotiator{
		supported: rank(supported),
		maxTokens: maxTokens,
		prefs:     make([]Preference, 0, maxTokens),
	}
}

func rank(supported []string) []string {
	ranked := make([]string, 0, len(supported))

	for _, token := range tiebreak {
		if contains(supported, token) {
			ranked = append(ranked, token)
		}
	}

	for _, token := range supported {
		if !contains(ranked, token) && !strcomp.EqualFold(token, Identity) {
			ranked = append(ranked, token)
		}
	}

	return ranked
}

// Result is an outcome of the negotiation.
type Result struct {
	// Token is the selected coding, or Identity.
	Token string
	// IdentityAcceptable tells whether sending the body as is would be fine too.
	IdentityAcceptable bool
}

// Negotiate selects the coding of the highest quality. Equal qualities are resolved by the
// ranking br > zstd > gzip > deflate > identity. No Accept-Encoding at all means any coding is
// acceptable, however identity is preferred then. status.ErrNotAcceptable is returned if
// neither any supported coding nor identity are acceptable.
func (n *Negotiator) Negotiate(values iter.Seq[string]) (Result, error) {
	n.prefs = Parse(n.prefs[:0], values, n.maxTokens)
	if len(n.prefs) == 0 {
		return Result{Token: Identity, IdentityAcceptable: true}, nil
	}

	wildcardQ := n.quality(wildcard)
	identityQ := n.quality(Identity)
	if identityQ == qUnset {
		identityQ = wildcardQ
	}

	// identity is always acceptable, unless explicitly excluded
	identityAcceptable := identityQ != 0

	best, bestQ := Identity, qUnset
	for _, token := range n.supported {
		q := n.quality(token)
		if q == qUnset {
			q = wildcardQ
		}

		if q > 0 && q > bestQ {
			best, bestQ = token, q
		}
	}

	switch {
	case bestQ == qUnset:
		if !identityAcceptable {
			return Result{}, status.ErrNotAcceptable
		}

		return Result{Token: Identity, IdentityAcceptable: true}, nil
	case identityQ > bestQ:
		return Result{Token: Identity, IdentityAcceptable: true}, nil
	default:
		return Result{Token: best, IdentityAcceptable: identityAcceptable}, nil
	}
}

// quality returns the quality of the token, or qUnset if it isn't mentioned. If mentioned
// multiple times, the first entry wins.
func (n *Negotiator) quality(token string) int {
	for _, pref := range n.prefs {
		if strcomp.EqualFold(pref.Token, token) {
			return pref.Quality
		}
	}

	return qUnset
}

// Parse appends entries of the Accept-Encoding values into buff. Malformed entries are skipped,
// as well as everything past the limit.
func Parse(buff []Preference, values iter.Seq[string], limit int) []Preference {
	for value := range values {
		for len(value) > 0 {
			var entry string
			comma := strings.IndexByte(value, ',')
			if comma == -1 {
				entry, value = value, ""
			} else {
				entry, value = value[:comma], value[comma+1:]
			}

			pref, ok := parseEntry(entry)
			if !ok {
				continue
			}

			if len(buff) >= limit {
				return buff
			}

			buff = append(buff, pref)
		}
	}

	return buff
}

func parseEntry(entry string) (pref Preference, ok bool) {
	token, params, _ := strings.Cut(entry, ";")
	token = trimOWS(token)
	if len(token) == 0 || !isToken(token) {
		return pref, false
	}

	pref = Preference{Token: token, Quality: qMax}

	for len(params) > 0 {
		var param string
		param, params, _ = strings.Cut(params, ";")
		key, value, found := strings.Cut(trimOWS(param), "=")
		if !found || !strcomp.EqualFold(trimOWS(key), "q") {
			continue
		}

		pref.Quality, ok = parseQuality(trimOWS(value))
		if !ok {
			return pref, false
		}
	}

	return pref, true
}

// parseQuality parses qvalue = ( "0" [ "." 0*3DIGIT ] ) / ( "1" [ "." 0*3("0") ] ) into
// thousandths.
func parseQuality(value string) (int, bool) {
	if len(value) == 0 || len(value) > len("0.000") {
		return 0, false
	}

	switch value[0] {
	case '0', '1':
	default:
		return 0, false
	}

	q := int(value[0]-'0') * qMax
	if len(value) == 1 {
		return q, true
	}

	if value[1] != '.' {
		return 0, false
	}

	multiplier := qMax / 10
	for _, char := range []byte(value[2:]) {
		if char < '0' || char > '9' {
			return 0, false
		}

		q += int(char-'0') * multiplier
		multiplier /= 10
	}

	if q > qMax {
		return 0, false
	}

	return q, true
}

func trimOWS(s string) string {
	return strings.Trim(s, " \t")
}

func isToken(s string) bool {
	for _, char := range s {
		if !httpguts.IsTokenRune(char) {
			return false
		}
	}

	return true
}

func contains(tokens []string, token string) bool {
	for _, t := range tokens {
		if strcomp.EqualFold(t, token) {
			return true
		}
	}

	return false
}
