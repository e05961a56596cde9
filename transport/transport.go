package transport

import (
	"net"

	"github.com/zavakid/tiny-http/config"
)

// Transport accepts connections and hands each of them to the callback in a separate goroutine.
// The connection is closed as soon as the callback returns.
type Transport interface {
	Bind(addr string) error
	Addr() net.Addr
	Listen(cfg config.NET, cb func(conn net.Conn)) error
	// Stop makes Listen return. Already accepted connections are left intact.
	Stop()
	// Drop closes all the connections being served.
	Drop()
	// Close closes the listener. A pending Accept is unblocked, making Listen return if the
	// transport is stopped.
	Close()
	// Wait blocks until all the callbacks return.
	Wait()
}
