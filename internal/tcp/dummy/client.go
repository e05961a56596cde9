package dummy

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/zavakid/tiny-http/internal/tcp"
)

var _ tcp.Client = new(Client)

// Client returns the pieces it was initialised with one by one, and io.EOF after all of them
// are exhausted, unless it's circular. Written data is journaled. Reading and writing may happen
// from different goroutines.
type Client struct {
	mu       sync.Mutex
	data     [][]byte
	tmp      []byte
	pointer  int
	closed   bool
	circular bool
	written  []byte
	err      error
}

func NewClient(data ...[]byte) *Client {
	return &Client{
		data: data,
	}
}

// NewStringClient is a convenience wrapper over NewClient.
func NewStringClient(data ...string) *Client {
	pieces := make([][]byte, len(data))
	for i, piece := range data {
		pieces[i] = []byte(piece)
	}

	return NewClient(pieces...)
}

// Circular makes the client start over as the data is exhausted. Mostly used for benchmarking.
func (c *Client) Circular() *Client {
	c.circular = true
	return c
}

// FailWith makes the client return the error instead of io.EOF as the data is exhausted.
func (c *Client) FailWith(err error) *Client {
	c.err = err
	return c
}

func (c *Client) Read() (data []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, io.EOF
	}

	if len(c.tmp) > 0 {
		data, c.tmp = c.tmp, nil

		return data, nil
	}

	if c.pointer >= len(c.data) {
		if !c.circular {
			if c.err != nil {
				return nil, c.err
			}

			return nil, io.EOF
		}

		c.pointer = 0
	}

	piece := c.data[c.pointer]
	c.pointer++

	return piece, nil
}

// Fetch makes the client usable as a body source.
func (c *Client) Fetch() ([]byte, error) {
	return c.Read()
}

func (c *Client) Pushback(takeback []byte) {
	c.mu.Lock()
	c.tmp = takeback
	c.mu.Unlock()
}

func (*Client) SetTimeout(time.Duration) {}

func (c *Client) Interrupt() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Client) Write(p []byte) error {
	c.mu.Lock()
	c.written = append(c.written, p...)
	c.mu.Unlock()

	return nil
}

// Written returns everything written so far.
func (c *Client) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]byte(nil), c.written...)
}

func (*Client) Conn() net.Conn {
	return NewNopConn()
}

func (*Client) Remote() net.Addr {
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	return nil
}
