package codec

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/stretchr/testify/require"
	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/internal/tcp/dummy"
)

func compress(t *testing.T, inst Instance, pieces ...string) []byte {
	var buff bytes.Buffer
	inst.ResetCompressor(&buff)

	for _, piece := range pieces {
		_, err := inst.Write([]byte(piece))
		require.NoError(t, err)
		require.NoError(t, inst.Flush())
	}

	require.NoError(t, inst.Close())

	return buff.Bytes()
}

func decompress(inst Instance, encoded ...[]byte) (string, error) {
	if err := inst.ResetDecompressor(dummy.NewClient(encoded...), 64); err != nil {
		return "", err
	}

	return fetchAll(inst)
}

func fetchAll(source http.Fetcher) (string, error) {
	builder := strings.Builder{}

	for {
		data, err := source.Fetch()
		builder.Write(data)
		switch err {
		case nil:
		case io.EOF:
			return builder.String(), nil
		default:
			return "", err
		}
	}
}

func scatter(b []byte, step int) (pieces [][]byte) {
	for i := 0; i < len(b); i += step {
		pieces = append(pieces, b[i:min(i+step, len(b))])
	}

	return pieces
}

func TestCodecs(t *testing.T) {
	for _, codec := range Default() {
		t.Run(codec.Token(), func(t *testing.T) {
			t.Run("round trip", func(t *testing.T) {
				inst := codec.New()
				encoded := compress(t, inst, "Hello, ", "world!")
				text, err := decompress(inst, encoded)
				require.NoError(t, err)
				require.Equal(t, "Hello, world!", text)
			})

			t.Run("scattered", func(t *testing.T) {
				text := strings.Repeat(uniuri.NewLen(64), 100)
				inst := codec.New()
				encoded := compress(t, inst, text)
				result, err := decompress(inst, scatter(encoded, 3)...)
				require.NoError(t, err)
				require.Equal(t, text, result)
			})

			t.Run("reuse", func(t *testing.T) {
				inst := codec.New()
				for i := range 3 {
					text := uniuri.NewLen(100 + i)
					result, err := decompress(inst, compress(t, inst, text))
					require.NoError(t, err)
					require.Equal(t, text, result)
				}
			})

			t.Run("instances are independent", func(t *testing.T) {
				a, b := codec.New(), codec.New()
				var bufA, bufB bytes.Buffer
				a.ResetCompressor(&bufA)
				b.ResetCompressor(&bufB)
				_, _ = a.Write([]byte("first"))
				_, _ = b.Write([]byte("second"))
				require.NoError(t, a.Close())
				require.NoError(t, b.Close())

				result, err := decompress(codec.New(), bufA.Bytes())
				require.NoError(t, err)
				require.Equal(t, "first", result)
			})

			t.Run("truncated", func(t *testing.T) {
				inst := codec.New()
				encoded := compress(t, inst, strings.Repeat(uniuri.New(), 50))
				_, err := decompress(inst, encoded[:len(encoded)/2])
				require.ErrorIs(t, err, status.ErrCorruptedEncoding)
			})

			t.Run("source error", func(t *testing.T) {
				inst := codec.New()
				encoded := compress(t, inst, strings.Repeat(uniuri.New(), 50))
				source := dummy.NewClient(encoded[:len(encoded)/2]).FailWith(status.ErrBodyTooLarge)
				require.NoError(t, ignoreEOF(inst.ResetDecompressor(source, 64)))
				_, err := fetchAll(inst)
				require.ErrorIs(t, err, status.ErrBodyTooLarge)
			})
		})
	}
}

func ignoreEOF(err error) error {
	if err == io.EOF {
		return nil
	}

	return err
}

func TestCorrupted(t *testing.T) {
	garbage := []byte(strings.Repeat("definitely not compressed ", 10))

	// brotli is left out, as its stream has neither a magic number nor a checksum
	for _, codec := range []Codec{NewGZIP(), NewDeflate(), NewZSTD()} {
		t.Run(codec.Token(), func(t *testing.T) {
			_, err := decompress(codec.New(), garbage)
			require.ErrorIs(t, err, status.ErrCorruptedEncoding)
		})
	}
}
