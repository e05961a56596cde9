package http

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zavakid/tiny-http/http/status"
)

func TestResponse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		fields := NewResponse().Reveal()
		require.Equal(t, status.OK, fields.Code)
		require.Equal(t, "text/plain; charset=utf-8", fields.ContentType)
		require.Nil(t, fields.Stream)
	})

	t.Run("content type header", func(t *testing.T) {
		fields := NewResponse().Header("content-TYPE", "text/html").Reveal()
		require.Equal(t, "text/html", fields.ContentType)
		require.False(t, fields.Headers.Has("content-type"))
	})

	t.Run("headers", func(t *testing.T) {
		fields := NewResponse().
			Header("Hello", "world").
			Headers(map[string][]string{"Accept": {"a", "b"}}).
			Reveal()
		require.Equal(t, "world", fields.Headers.Value("hello"))
		require.Equal(t, 2, fields.Headers.Count("accept"))
	})

	t.Run("write", func(t *testing.T) {
		resp := NewResponse()
		_, _ = fmt.Fprintf(resp, "Hello, %s!", "world")
		require.Equal(t, "Hello, world!", string(resp.Reveal().Body))
	})

	t.Run("stream replaces body", func(t *testing.T) {
		resp := NewResponse().String("body").Stream(nil, -5)
		require.Nil(t, resp.Reveal().Body)
		require.Equal(t, int64(-1), resp.Reveal().StreamSize)
	})

	t.Run("json", func(t *testing.T) {
		resp := NewResponse().JSON(map[string]int{"answer": 42})
		require.Equal(t, `{"answer":42}`, string(resp.Reveal().Body))
		require.Equal(t, "application/json", resp.Reveal().ContentType)
	})

	t.Run("http error", func(t *testing.T) {
		fields := NewResponse().Error(status.ErrNotFound).Reveal()
		require.Equal(t, status.NotFound, fields.Code)
		require.Equal(t, "not found", string(fields.Body))
	})

	t.Run("foreign error is not revealed", func(t *testing.T) {
		fields := NewResponse().Error(errors.New("password is hunter2")).Reveal()
		require.Equal(t, status.InternalServerError, fields.Code)
		require.Equal(t, "Internal Server Error", string(fields.Body))
	})

	t.Run("nil error", func(t *testing.T) {
		fields := NewResponse().Error(nil).Reveal()
		require.Equal(t, status.OK, fields.Code)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.html")
		require.NoError(t, os.WriteFile(path, []byte("<h1>hi</h1>"), 0o644))

		resp, err := NewResponse().TryFile(path)
		require.NoError(t, err)
		fields := resp.Reveal()
		require.Equal(t, int64(11), fields.StreamSize)
		require.Contains(t, fields.ContentType, "text/html")
		require.NoError(t, fields.Stream.(*os.File).Close())

		_, err = NewResponse().TryFile(filepath.Join(t.TempDir(), "missing"))
		require.ErrorIs(t, err, status.ErrNotFound)
		require.Equal(t, status.NotFound, NewResponse().File(t.TempDir()).Reveal().Code)
	})

	t.Run("clear", func(t *testing.T) {
		resp := NewResponse().Code(status.Teapot).Header("a", "b").String("c").NoCompression()
		resp.Clear()
		fields := resp.Reveal()
		require.Equal(t, status.OK, fields.Code)
		require.True(t, fields.Headers.Empty())
		require.Empty(t, fields.Body)
		require.False(t, fields.NoCompression)
	})
}
