package http

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/kv"
)

// pieces is a fetcher returning the pieces one by one, io.EOF comes along with the last one.
type pieces struct {
	data [][]byte
}

func newPieces(data ...string) *pieces {
	p := new(pieces)
	for _, piece := range data {
		p.data = append(p.data, []byte(piece))
	}

	return p
}

func (p *pieces) Fetch() ([]byte, error) {
	if len(p.data) == 0 {
		return nil, io.EOF
	}

	piece := p.data[0]
	p.data = p.data[1:]
	if len(p.data) == 0 {
		return piece, io.EOF
	}

	return piece, nil
}

func newTestBody(limit uint64, data ...string) *Body {
	b := NewBody()
	b.Reset(newPieces(data...), nil, limit, nil, "")
	return b
}

func TestBody(t *testing.T) {
	t.Run("no body", func(t *testing.T) {
		b := NewBody()
		data, err := b.Bytes()
		require.NoError(t, err)
		require.Empty(t, data)
		require.True(t, b.Consumed())

		select {
		case <-b.Finished():
		default:
			require.Fail(t, "empty body must be finished from the start")
		}
	})

	t.Run("bytes", func(t *testing.T) {
		b := newTestBody(1024, "Hello, ", "world!")
		data, err := b.Bytes()
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", string(data))

		// repeated calls return the same result
		str, err := b.String()
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", str)
		require.True(t, b.Consumed())
	})

	t.Run("read", func(t *testing.T) {
		b := newTestBody(1024, "Hello, ", "world!")
		data, err := io.ReadAll(iotestReader{b})
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", string(data))
	})

	t.Run("callback", func(t *testing.T) {
		b := newTestBody(1024, "a", "b", "c")
		var got []string
		err := b.Callback(func(data []byte) error {
			got = append(got, string(data))
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "c"}, got)
	})

	t.Run("limit", func(t *testing.T) {
		b := newTestBody(5, "Hello, ", "world!")
		_, err := b.Bytes()
		require.ErrorIs(t, err, status.ErrBodyTooLarge)
		require.ErrorIs(t, b.Error(), status.ErrBodyTooLarge)
		require.False(t, b.Consumed())
	})

	t.Run("decoded source", func(t *testing.T) {
		b := NewBody()
		b.Reset(newPieces("raw"), newPieces("decoded"), 1024, nil, "")
		data, err := b.Bytes()
		require.NoError(t, err)
		require.Equal(t, "decoded", string(data))
	})

	t.Run("json", func(t *testing.T) {
		b := NewBody()
		b.Reset(newPieces(`{"name":"tiny","size":`, `3}`), nil, 1024, nil, "application/json; charset=utf-8")

		var model struct {
			Name string `json:"name"`
			Size int    `json:"size"`
		}
		require.NoError(t, b.JSON(&model))
		require.Equal(t, "tiny", model.Name)
		require.Equal(t, 3, model.Size)
	})

	t.Run("json with wrong content type", func(t *testing.T) {
		b := NewBody()
		b.Reset(newPieces(`{}`), nil, 1024, nil, "text/plain")
		err := b.JSON(&struct{}{})
		require.Equal(t, status.UnsupportedMediaType, status.CodeOf(err))
	})

	t.Run("release", func(t *testing.T) {
		b := newTestBody(1024, "Hello, ", "world!")
		data, err := b.Fetch()
		require.NoError(t, err)
		require.Equal(t, "Hello, ", string(data))

		b.Release()
		<-b.Finished()
		_, err = b.Fetch()
		require.ErrorIs(t, err, ErrReleased)

		// the message is drained regardless of the consumer
		require.NoError(t, b.Drain())
	})

	t.Run("finished after consumption", func(t *testing.T) {
		b := newTestBody(1024, "a", "b")
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-b.Finished()
		}()

		require.NoError(t, b.Discard())
		wg.Wait()
	})

	t.Run("trailers", func(t *testing.T) {
		trailers := kv.New().Add("Checksum", "abc")
		b := NewBody()
		b.Reset(newPieces("data"), nil, 1024, trailers, "")
		require.NoError(t, b.Discard())
		require.Equal(t, "abc", b.Trailers().Value("checksum"))

		require.True(t, NewBody().Trailers().Empty())
	})
}

// iotestReader hides all the methods except Read.
type iotestReader struct {
	r io.Reader
}

func (i iotestReader) Read(b []byte) (int, error) {
	return i.r.Read(b)
}
