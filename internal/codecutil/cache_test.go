package codecutil

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/http/codec"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/internal/tcp/dummy"
)

type mockCodec struct {
	Instantiated bool
}

func (m *mockCodec) Token() string {
	return "mock"
}

func (m *mockCodec) New() codec.Instance {
	m.Instantiated = true
	return nil
}

func TestLazyInstantiation(t *testing.T) {
	mock := new(mockCodec)
	cache := NewCache([]codec.Codec{mock})
	require.False(t, mock.Instantiated)
	_ = cache.Get("rand")
	require.False(t, mock.Instantiated)
	_ = cache.Get("MOCK")
	require.True(t, mock.Instantiated)
}

func TestFilter(t *testing.T) {
	filtered := Filter(codec.Default(), []string{"gzip", "zstd", "compress"})
	tokens := NewCache(filtered).Tokens()
	require.Equal(t, []string{"zstd", "gzip"}, tokens)
}

func encode(t *testing.T, cache *Cache, text string, codings ...string) []byte {
	data := []byte(text)

	for _, token := range codings {
		var buff bytes.Buffer
		inst := cache.Get(token)
		inst.ResetCompressor(&buff)
		_, err := inst.Write(data)
		require.NoError(t, err)
		require.NoError(t, inst.Close())
		data = buff.Bytes()
	}

	return data
}

func readAll(source http.Fetcher) (string, error) {
	var b strings.Builder

	for {
		data, err := source.Fetch()
		b.Write(data)
		switch err {
		case nil:
		case io.EOF:
			return b.String(), nil
		default:
			return b.String(), err
		}
	}
}

func TestDecoder(t *testing.T) {
	t.Run("stacked codings", func(t *testing.T) {
		encoder := NewCache(codec.Default())
		encoded := encode(t, encoder, "Hello, world!", "gzip", "br")

		decoder, err := NewCache(codec.Default()).Decoder(dummy.NewClient(encoded), []string{"gzip", "br"}, 32)
		require.NoError(t, err)
		text, err := readAll(decoder)
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", text)
	})

	t.Run("no codings", func(t *testing.T) {
		source := dummy.NewStringClient("plain")
		decoder, err := NewCache(codec.Default()).Decoder(source, nil, 32)
		require.NoError(t, err)
		text, err := readAll(decoder)
		require.NoError(t, err)
		require.Equal(t, "plain", text)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := NewCache(codec.Default()).Decoder(dummy.NewClient(), []string{"compress"}, 32)
		require.ErrorIs(t, err, status.ErrUnsupportedEncoding)

		_, err = NewCache(codec.Default()).Decoder(dummy.NewClient(), []string{"gzip", "gzip"}, 32)
		require.ErrorIs(t, err, status.ErrUnsupportedEncoding)
	})

	t.Run("lazy", func(t *testing.T) {
		source := dummy.NewStringClient("untouched")
		_, err := NewCache(codec.Default()).Decoder(source, []string{"gzip"}, 32)
		require.NoError(t, err)
		// nothing must be read until the first fetch
		data, err := source.Read()
		require.NoError(t, err)
		require.Equal(t, "untouched", string(data))
	})

	t.Run("corrupted", func(t *testing.T) {
		decoder, err := NewCache(codec.Default()).Decoder(dummy.NewStringClient("not gzipped at all"), []string{"gzip"}, 32)
		require.NoError(t, err)
		_, err = readAll(decoder)
		require.ErrorIs(t, err, status.ErrCorruptedEncoding)
	})
}
