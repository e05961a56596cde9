package tinyhttp

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zavakid/tiny-http/config"
	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/router/simple"
	"go.uber.org/zap/zaptest"
)

func getRouter() *simple.Router {
	return simple.New().
		Get("/", func(request *http.Request) (*http.Response, error) {
			return http.String(request, "Hello, world!"), nil
		}).
		Post("/echo", func(request *http.Request) (*http.Response, error) {
			body, err := request.Body.Bytes()
			if err != nil {
				return nil, err
			}

			return http.Bytes(request, body), nil
		}).
		Get("/big", func(request *http.Request) (*http.Response, error) {
			return http.String(request, strings.Repeat("Hello, world! ", 500)), nil
		}).
		Get("/stream", func(request *http.Request) (*http.Response, error) {
			return request.Respond().Stream(strings.NewReader(strings.Repeat("abc", 10000)), -1), nil
		})
}

// launch serves the app in background and returns the URLs of its listeners once they're bound.
func launch(t *testing.T, app *App) (addrs []string, stopped <-chan error) {
	started := make(chan struct{})
	errch := make(chan error, 1)
	app.NotifyOnStart(func() {
		close(started)
	})

	go func() {
		errch <- app.Serve(getRouter())
	}()

	select {
	case <-started:
	case err := <-errch:
		require.FailNow(t, "app failed to start", err)
	}

	for _, addr := range app.Addrs() {
		addrs = append(addrs, addr.String())
	}

	return addrs, errch
}

func awaitStop(t *testing.T, stopped <-chan error) {
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "app didn't stop")
	}
}

func TestApp(t *testing.T) {
	app := New("127.0.0.1:0").Logger(zaptest.NewLogger(t))
	addrs, stopped := launch(t, app)
	url := "http://" + addrs[0]
	client := &nethttp.Client{Timeout: 5 * time.Second}

	t.Run("get", func(t *testing.T) {
		resp, err := client.Get(url + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		require.Equal(t, "Hello, world!", string(body))
	})

	t.Run("chunked request body", func(t *testing.T) {
		payload := strings.Repeat("data ", 2000)
		request, err := nethttp.NewRequest(nethttp.MethodPost, url+"/echo", io.NopCloser(strings.NewReader(payload)))
		require.NoError(t, err)
		request.ContentLength = -1

		resp, err := client.Do(request)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, payload, string(body))
	})

	t.Run("transparent gzip", func(t *testing.T) {
		resp, err := client.Get(url + "/big")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.True(t, resp.Uncompressed)
		require.Equal(t, strings.Repeat("Hello, world! ", 500), string(body))
	})

	t.Run("streamed compressed response", func(t *testing.T) {
		resp, err := client.Get(url + "/stream")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.True(t, resp.Uncompressed)
		require.Equal(t, strings.Repeat("abc", 10000), string(body))
	})

	t.Run("pipelining", func(t *testing.T) {
		conn, err := net.Dial("tcp", addrs[0])
		require.NoError(t, err)
		defer conn.Close()

		const n = 5
		raw := strings.Repeat("GET / HTTP/1.1\r\nHost: x\r\n\r\n", n-1) +
			"GET /big HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"
		_, err = conn.Write([]byte(raw))
		require.NoError(t, err)

		reader := bufio.NewReader(conn)
		for i := range n {
			resp, err := nethttp.ReadResponse(reader, nil)
			require.NoError(t, err, i)
			_, err = io.Copy(io.Discard, resp.Body)
			require.NoError(t, err)
			require.Equal(t, 200, resp.StatusCode)
		}

		_, err = reader.ReadByte()
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("config update", func(t *testing.T) {
		require.NoError(t, app.Config().Update(func(cfg *config.Config) {
			cfg.Headers.Default = map[string]string{"Server": "tiny-http"}
		}))

		fresh := &nethttp.Client{Transport: &nethttp.Transport{DisableKeepAlives: true}}
		resp, err := fresh.Get(url + "/")
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, "tiny-http", resp.Header.Get("Server"))
	})

	app.GracefulStop()
	awaitStop(t, stopped)
}

func TestHTTPS(t *testing.T) {
	cert, key, err := generateSelfSignedCert(t.TempDir())
	require.NoError(t, err)

	app := New("127.0.0.1:0").HTTPS(0, cert, key)
	addrs, stopped := launch(t, app)
	require.Len(t, addrs, 2)

	client := &nethttp.Client{
		Timeout: 5 * time.Second,
		Transport: &nethttp.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	resp, err := client.Get("https://" + addrs[0] + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "Hello, world!", string(body))
	require.Equal(t, "HTTP/1.1", resp.Proto)

	app.Stop()
	awaitStop(t, stopped)
}

func TestAppErrors(t *testing.T) {
	t.Run("bad config", func(t *testing.T) {
		cfg := config.Default()
		cfg.HTTP.MaxPipelineDepth = 0
		err := New("127.0.0.1:0").Tune(cfg).Serve(nil)
		require.ErrorIs(t, err, config.ErrBadLimit)
	})

	t.Run("bad certificate", func(t *testing.T) {
		err := New("127.0.0.1:0").HTTPS(0, "nonexistent.crt", "nonexistent.key").Serve(nil)
		require.Error(t, err)
	})

	t.Run("bad address", func(t *testing.T) {
		require.Panics(t, func() {
			New("localhost")
		})
	})

	t.Run("served twice", func(t *testing.T) {
		app := New("127.0.0.1:0")
		_, stopped := launch(t, app)
		require.ErrorIs(t, app.Serve(nil), ErrAlreadyServing)
		app.GracefulStop()
		awaitStop(t, stopped)
	})

	t.Run("port in use", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer l.Close()

		err = New(l.Addr().String()).Serve(nil)
		require.Error(t, err, fmt.Sprintf("port of %s must be busy", l.Addr()))
	})
}
