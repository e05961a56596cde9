package transport

import (
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/zavakid/tiny-http/config"
)

type listener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

type TCP struct {
	l     listener
	wg    *sync.WaitGroup
	stop  *atomic.Bool
	conns *xsync.MapOf[net.Conn, struct{}]
}

func NewTCP() *TCP {
	tcp := newTCP(nil)
	return &tcp
}

func newTCP(l listener) TCP {
	return TCP{
		l:     l,
		wg:    new(sync.WaitGroup),
		stop:  new(atomic.Bool),
		conns: xsync.NewMapOf[net.Conn, struct{}](),
	}
}

func bindTCP(addr string) (*net.TCPListener, error) {
	tcpaddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	return net.ListenTCP("tcp", tcpaddr)
}

func (t *TCP) Bind(addr string) error {
	l, err := bindTCP(addr)
	if err != nil {
		return err
	}

	t.l = l
	return nil
}

func (t *TCP) Addr() net.Addr {
	return t.l.Addr()
}

// Listen runs the accept loop. The loop is interrupted every AcceptLoopInterruptPeriod in order
// to check whether it's time to stop.
func (t *TCP) Listen(cfg config.NET, cb func(conn net.Conn)) error {
	for !t.stop.Load() {
		err := t.l.SetDeadline(time.Now().Add(cfg.AcceptLoopInterruptPeriod))
		if err != nil {
			if t.stop.Load() {
				return nil
			}

			return err
		}

		conn, err := t.l.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}

			if t.stop.Load() {
				return nil
			}

			return err
		}

		t.wg.Add(1)
		t.conns.Store(conn, struct{}{})
		go func() {
			defer t.wg.Done()
			cb(conn)
			_ = conn.Close()
			t.conns.Delete(conn)
		}()
	}

	return nil
}

func (t *TCP) Stop() {
	t.stop.Store(true)
}

func (t *TCP) Drop() {
	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.Close()
		return true
	})
}

func (t *TCP) Close() {
	_ = t.l.Close()
}

func (t *TCP) Wait() {
	t.wg.Wait()
}

// Connections returns how many connections are being served at the moment.
func (t *TCP) Connections() int {
	return t.conns.Size()
}
