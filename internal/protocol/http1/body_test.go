package http1

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/stretchr/testify/require"
	"github.com/zavakid/tiny-http/config"
	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/internal/tcp/dummy"
	"github.com/zavakid/tiny-http/kv"
)

func getRequestWithBody(chunked bool, length int64) *http.Request {
	request := http.NewRequest(kv.New(), kv.New(), http.NewBody())

	if chunked {
		request.Encoding.Transfer = []string{"chunked"}
		request.Encoding.Chunked = true
	} else {
		request.Encoding.Length = length
		request.Encoding.HasLength = true
	}

	return request
}

func readall(f http.Fetcher) ([]byte, error) {
	var buff []byte

	for {
		data, err := f.Fetch()
		buff = append(buff, data...)
		switch err {
		case nil:
		case io.EOF:
			return buff, nil
		default:
			return buff, err
		}
	}
}

func TestBodyDecoder(t *testing.T) {
	cfg := config.Default()

	t.Run("no body", func(t *testing.T) {
		client := dummy.NewStringClient("GET / HTTP/1.1\r\n\r\n")
		decoder := NewBodyDecoder(client, cfg)
		require.Nil(t, decoder.Reset(getRequestWithBody(false, 0), nil))
	})

	t.Run("sized", func(t *testing.T) {
		client := dummy.NewStringClient("hel", "lo", "GET / HTTP/1.1\r\n\r\n")
		decoder := NewBodyDecoder(client, cfg)
		body := decoder.Reset(getRequestWithBody(false, 5), nil)
		data, err := readall(body)
		require.NoError(t, err)
		require.Equal(t, "hello", string(data))

		// sticky
		_, err = body.Fetch()
		require.ErrorIs(t, err, io.EOF)

		next, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(next))
	})

	t.Run("sized and pipelined in a single read", func(t *testing.T) {
		client := dummy.NewStringClient("helloGET / HTTP/1.1\r\n\r\n")
		decoder := NewBodyDecoder(client, cfg)
		data, err := readall(decoder.Reset(getRequestWithBody(false, 5), nil))
		require.NoError(t, err)
		require.Equal(t, "hello", string(data))

		next, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(next))
	})

	t.Run("sized drip-fed", func(t *testing.T) {
		payload := uniuri.NewLen(500)
		raw := []byte(payload + "extra")

		for n := 1; n < len(raw); n += 13 {
			client := dummy.NewClient(scatter(raw, n)...)
			decoder := NewBodyDecoder(client, cfg)
			data, err := readall(decoder.Reset(getRequestWithBody(false, int64(len(payload))), nil))
			require.NoError(t, err)
			require.Equal(t, payload, string(data), n)
		}
	})

	t.Run("sized truncated", func(t *testing.T) {
		client := dummy.NewStringClient("hel")
		decoder := NewBodyDecoder(client, cfg)
		body := decoder.Reset(getRequestWithBody(false, 5), nil)
		_, err := readall(body)
		require.ErrorIs(t, err, status.ErrTruncatedBody)
		require.Equal(t, status.FramingMismatch, status.KindOf(err))

		_, err = body.Fetch()
		require.ErrorIs(t, err, status.ErrTruncatedBody)
	})

	t.Run("read failure", func(t *testing.T) {
		failure := errors.New("connection reset by peer")
		client := dummy.NewStringClient("hel").FailWith(failure)
		decoder := NewBodyDecoder(client, cfg)
		_, err := readall(decoder.Reset(getRequestWithBody(false, 5), nil))
		require.ErrorIs(t, err, failure)
		require.ErrorIs(t, err, status.ErrReadFailed)
		require.Equal(t, status.IOFailure, status.KindOf(err))
	})

	t.Run("chunked", func(t *testing.T) {
		client := dummy.NewStringClient("5\r\nhello\r\n", "6\r\n, worl\r\n1\r\nd\r\n0\r\nChecksum: 1\r\n\r\nGET / HTTP/1.1\r\n\r\n")
		decoder := NewBodyDecoder(client, cfg)
		trailers := kv.New()
		body := decoder.Reset(getRequestWithBody(true, 0), trailers)
		data, err := readall(body)
		require.NoError(t, err)
		require.Equal(t, "hello, world", string(data))
		require.Equal(t, "1", trailers.Value("checksum"))

		next, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(next))
	})

	t.Run("chunked drip-fed", func(t *testing.T) {
		var raw strings.Builder
		var payload string
		for i := range 10 {
			piece := uniuri.NewLen(10 + i)
			payload += piece
			raw.WriteString(strconv.FormatInt(int64(len(piece)), 16) + "\r\n" + piece + "\r\n")
		}
		raw.WriteString("0\r\n\r\n")

		for n := 1; n < raw.Len(); n += 7 {
			client := dummy.NewClient(scatter([]byte(raw.String()), n)...)
			decoder := NewBodyDecoder(client, cfg)
			data, err := readall(decoder.Reset(getRequestWithBody(true, 0), nil))
			require.NoError(t, err)
			require.Equal(t, payload, string(data), n)
		}
	})

	t.Run("chunked truncated", func(t *testing.T) {
		client := dummy.NewStringClient("5\r\nhello\r\n")
		decoder := NewBodyDecoder(client, cfg)
		_, err := readall(decoder.Reset(getRequestWithBody(true, 0), nil))
		require.ErrorIs(t, err, status.ErrTruncatedBody)
	})

	t.Run("chunked body too large", func(t *testing.T) {
		cfg := config.Default()
		cfg.Body.MaxSize = 8
		client := dummy.NewStringClient("5\r\nhello\r\n5\r\nworld\r\n0\r\n\r\n")
		decoder := NewBodyDecoder(client, cfg)
		_, err := readall(decoder.Reset(getRequestWithBody(true, 0), nil))
		require.ErrorIs(t, err, status.ErrBodyTooLarge)
	})

	t.Run("malformed chunk", func(t *testing.T) {
		client := dummy.NewStringClient("5\r\nhello!!\r\n0\r\n\r\n")
		decoder := NewBodyDecoder(client, cfg)
		body := decoder.Reset(getRequestWithBody(true, 0), nil)
		_, err := readall(body)
		require.ErrorIs(t, err, status.ErrBadChunk)

		_, err = body.Fetch()
		require.ErrorIs(t, err, status.ErrBadChunk)
	})

	t.Run("reuse", func(t *testing.T) {
		client := dummy.NewStringClient("hello", "3\r\nabc\r\n0\r\n\r\n", "world")
		decoder := NewBodyDecoder(client, cfg)

		data, err := readall(decoder.Reset(getRequestWithBody(false, 5), nil))
		require.NoError(t, err)
		require.Equal(t, "hello", string(data))

		data, err = readall(decoder.Reset(getRequestWithBody(true, 0), nil))
		require.NoError(t, err)
		require.Equal(t, "abc", string(data))

		data, err = readall(decoder.Reset(getRequestWithBody(false, 5), nil))
		require.NoError(t, err)
		require.Equal(t, "world", string(data))
	})
}

func TestBodyStream(t *testing.T) {
	cfg := config.Default()

	t.Run("consumer limit", func(t *testing.T) {
		client := dummy.NewStringClient("hello, world")
		decoder := NewBodyDecoder(client, cfg)
		raw := decoder.Reset(getRequestWithBody(false, 12), nil)
		body := http.NewBody()
		body.Reset(raw, nil, 5, nil, "")

		_, err := body.Bytes()
		require.ErrorIs(t, err, status.ErrBodyTooLarge)
		// the rest of the message is still drained off the wire
		require.NoError(t, body.Drain())
	})

	t.Run("drain after partial read", func(t *testing.T) {
		client := dummy.NewStringClient("hel", "lo", "next")
		decoder := NewBodyDecoder(client, cfg)
		raw := decoder.Reset(getRequestWithBody(false, 5), nil)
		body := http.NewBody()
		body.Reset(raw, nil, cfg.Body.MaxSize, nil, "")

		data, err := body.Fetch()
		require.NoError(t, err)
		require.Equal(t, "hel", string(data))
		require.False(t, body.Consumed())

		body.Release()
		require.NoError(t, body.Drain())

		next, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, "next", string(next))
	})
}
