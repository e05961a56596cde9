package transport

import (
	"net"
	"sync/atomic"

	"github.com/zavakid/tiny-http/config"
)

// Supervisor runs multiple transports at once. As soon as any of them fails, the rest are
// stopped too.
type Supervisor struct {
	stopped *atomic.Bool
	ts      []boundTransport
	stopch  chan struct{}
	done    chan struct{}
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		stopped: new(atomic.Bool),
		stopch:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Add binds the transport. If binding fails, all the transports bound before are closed.
func (s *Supervisor) Add(addr string, transport Transport, cb func(net.Conn)) error {
	err := transport.Bind(addr)
	if err != nil {
		s.close()
		return err
	}

	s.ts = append(s.ts, boundTransport{
		cb: cb,
		t:  transport,
	})

	return nil
}

// Addrs returns addresses of all the bound transports.
func (s *Supervisor) Addrs() []net.Addr {
	addrs := make([]net.Addr, len(s.ts))
	for i, t := range s.ts {
		addrs[i] = t.t.Addr()
	}

	return addrs
}

// Run blocks until either Stop is called or any of the transports fails. In both cases all the
// transports are stopped and their connections are awaited. Must be called once.
func (s *Supervisor) Run(cfg config.NET) error {
	defer close(s.done)

	if len(s.ts) == 0 {
		return nil
	}

	errch := make(chan error)

	for _, t := range s.ts {
		go func() {
			errch <- t.t.Listen(cfg, t.cb)
		}()
	}

	select {
	case err := <-errch:
		s.stop()
		drain(errch, len(s.ts)-1)
		s.wait()

		return err
	case <-s.stopch:
		s.stop()
		drain(errch, len(s.ts))
		s.wait()
		s.stopch <- struct{}{}

		return nil
	}
}

// Stop stops accepting new connections and waits until already accepted ones are done.
func (s *Supervisor) Stop() {
	select {
	case s.stopch <- struct{}{}:
		<-s.stopch
	case <-s.done:
	}
}

// Drop closes all the connections being served.
func (s *Supervisor) Drop() {
	for _, t := range s.ts {
		t.t.Drop()
	}
}

func (s *Supervisor) stop() {
	if s.stopped.Swap(true) {
		return
	}

	// closing the listeners unblocks pending accepts, so the loops return without a delay
	for _, t := range s.ts {
		t.t.Stop()
		t.t.Close()
	}
}

// wait awaits the connections. Must be called after all the accept loops returned, otherwise
// a connection accepted in the meantime would be left behind.
func (s *Supervisor) wait() {
	for _, t := range s.ts {
		t.t.Wait()
	}
}

func (s *Supervisor) close() {
	for _, t := range s.ts {
		t.t.Close()
	}
}

type boundTransport struct {
	cb func(conn net.Conn)
	t  Transport
}

func drain(ch <-chan error, n int) {
	for range n {
		<-ch
	}
}
