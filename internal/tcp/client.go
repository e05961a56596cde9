package tcp

import (
	"errors"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// ErrInterrupted is returned by reads after the client was interrupted.
var ErrInterrupted = errors.New("reading is interrupted")

// Client is the buffered byte stream of a connection. Read returns the next piece of data,
// which is valid until the next call. Whatever the caller hasn't consumed must be given back
// via Pushback, so the next Read returns it first without touching the socket.
type Client interface {
	Read() ([]byte, error)
	Pushback([]byte)
	// SetTimeout sets the timeout for every consecutive socket read.
	SetTimeout(timeout time.Duration)
	// Interrupt unblocks a pending Read and makes all the following ones fail.
	Interrupt()
	Write([]byte) error
	Conn() net.Conn
	Remote() net.Addr
	Close() error
}

type client struct {
	conn         net.Conn
	buff         []byte
	pending      []byte
	readTimeout  time.Duration
	writeTimeout time.Duration
	interrupted  atomic.Bool
}

func NewClient(conn net.Conn, readTimeout, writeTimeout time.Duration, buff []byte) Client {
	return &client{
		buff:         buff,
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (c *client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return nil, err
	}

	// the flag is checked after the deadline was set, so a concurrent Interrupt either
	// is seen here, or has its past deadline overwrite ours
	if c.interrupted.Load() {
		return nil, ErrInterrupted
	}

	n, err := c.conn.Read(c.buff)
	if err != nil && c.interrupted.Load() {
		err = ErrInterrupted
	}

	return c.buff[:n], err
}

func (c *client) Pushback(b []byte) {
	c.pending = b
}

func (c *client) SetTimeout(timeout time.Duration) {
	c.readTimeout = timeout
}

func (c *client) Interrupt() {
	c.interrupted.Store(true)
	_ = c.conn.SetReadDeadline(time.Unix(1, 0))
}

func (c *client) Conn() net.Conn {
	return c.conn
}

func (c *client) Write(b []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}

	_, err := c.conn.Write(b)

	return err
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *client) Close() error {
	return c.conn.Close()
}

// IsTimeout reports whether the error is caused by an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
