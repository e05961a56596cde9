package transport

import (
	"crypto/tls"
	"net"
)

type TLS struct {
	cfg *tls.Config
	TCP
}

// NewTLS returns a transport terminating TLS with the config. The config must provide
// certificates, either directly or via GetCertificate.
func NewTLS(cfg *tls.Config) *TLS {
	return &TLS{cfg: cfg}
}

func (t *TLS) Bind(addr string) error {
	tcp, err := bindTCP(addr)
	if err != nil {
		return err
	}

	t.TCP = newTCP(tlsAdapter{tcp, tls.NewListener(tcp, t.cfg)})

	return nil
}

type tlsAdapter struct {
	*net.TCPListener
	tls net.Listener
}

func (t tlsAdapter) Accept() (net.Conn, error) {
	return t.tls.Accept()
}
