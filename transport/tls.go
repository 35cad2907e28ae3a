package transport

import (
	"crypto/tls"
	"net"
	"slices"
)

// TLS is the TCP transport wrapping every accepted connection into a TLS server session.
// Such connections don't support sendfile.
type TLS struct {
	cfg *tls.Config
	TCP
}

func NewTLS(certs []tls.Certificate) *TLS {
	return NewTLSConfig(&tls.Config{Certificates: certs})
}

// NewTLSConfig uses the passed config as is, except for the protocol constraints which
// are enforced. Certificates are usually supplied dynamically via GetCertificate then.
func NewTLSConfig(cfg *tls.Config) *TLS {
	cfg = cfg.Clone()
	cfg.MinVersion = max(cfg.MinVersion, tls.VersionTLS12)
	cfg.NextProtos = slices.DeleteFunc(slices.Clone(cfg.NextProtos), func(proto string) bool {
		return proto == "h2" || proto == "http/1.1"
	})
	cfg.NextProtos = append(cfg.NextProtos, "http/1.1")

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
