package codecutil

import (
	"github.com/indigo-web/utils/strcomp"
	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/http/codec"
	"github.com/zavakid/tiny-http/http/status"
)

// Cache lazily instantiates codecs and keeps the instances for reuse. It isn't safe for
// concurrent use.
type Cache struct {
	codecs    []codec.Codec
	instances []codec.Instance
}

func NewCache(codecs []codec.Codec) *Cache {
	return &Cache{
		codecs:    codecs,
		instances: make([]codec.Instance, len(codecs)),
	}
}

// Get returns an instance of the codec, or nil if there's none for the token.
func (c *Cache) Get(token string) codec.Instance {
	for i, entry := range c.codecs {
		if !strcomp.EqualFold(entry.Token(), token) {
			continue
		}

		if c.instances[i] == nil {
			c.instances[i] = entry.New()
		}

		return c.instances[i]
	}

	return nil
}

// Tokens returns tokens of all the codecs.
func (c *Cache) Tokens() []string {
	tokens := make([]string, len(c.codecs))
	for i, entry := range c.codecs {
		tokens[i] = entry.Token()
	}

	return tokens
}

// Filter returns codecs whose tokens are listed.
func Filter(codecs []codec.Codec, tokens []string) []codec.Codec {
	filtered := make([]codec.Codec, 0, len(codecs))

	for _, entry := range codecs {
		for _, token := range tokens {
			if strcomp.EqualFold(entry.Token(), token) {
				filtered = append(filtered, entry)
				break
			}
		}
	}

	return filtered
}

// Decoder builds the decoding pipeline for a body encoded with the content codings, listed in
// order of their application. The decompressors are reset lazily on the first fetch, as it may
// block reading the stream. status.ErrUnsupportedEncoding is returned if any of the codings
// isn't known.
func (c *Cache) Decoder(source http.Fetcher, codings []string, bufferSize int) (http.Fetcher, error) {
	// instances are unique per token, so applying the same coding twice can't be served
	for i, token := range codings {
		for _, prev := range codings[:i] {
			if strcomp.EqualFold(prev, token) {
				return nil, status.ErrUnsupportedEncoding
			}
		}
	}

	for i := len(codings) - 1; i >= 0; i-- {
		inst := c.Get(codings[i])
		if inst == nil {
			return nil, status.ErrUnsupportedEncoding
		}

		source = &lazyDecoder{
			inst:       inst,
			source:     source,
			bufferSize: bufferSize,
		}
	}

	return source, nil
}

type lazyDecoder struct {
	inst       codec.Decompressor
	source     http.Fetcher
	bufferSize int
	ready      bool
	err        error
}

func (l *lazyDecoder) Fetch() ([]byte, error) {
	if l.err != nil {
		return nil, l.err
	}

	if !l.ready {
		l.ready = true
		if err := l.inst.ResetDecompressor(l.source, l.bufferSize); err != nil {
			l.err = err
			return nil, err
		}
	}

	data, err := l.inst.Fetch()
	if err != nil {
		l.err = err
	}

	return data, err
}
