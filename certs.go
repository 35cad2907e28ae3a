package webcore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/indigo-web/webcore/internal/address"
	"github.com/indigo-web/webcore/transport"
	"golang.org/x/crypto/acme/autocert"
)

const selfSignedValidity = 10 * 365 * 24 * time.Hour

// AutoHTTPS adds a TLS listener with certificates obtained via ACME for the domains. If the
// App is bound to a local address, a self-signed certificate is generated instead, since
// no authority issues those.
func (a *App) AutoHTTPS(addr string, domains ...string) *App {
	cache, err := cacheDir()
	if err != nil {
		a.errs = append(a.errs, err)
		return a
	}

	if address.IsLocal(a.addr) {
		cert, key, err := selfSigned(cache)
		if err != nil {
			a.log.Warn("generating self-signed certificate, TLS is disabled", "error", err)
			return a
		}

		return a.TLS(addr, cert, key)
	}

	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache(cache),
	}

	if len(domains) > 0 {
		m.HostPolicy = autocert.HostWhitelist(domains...)
	}

	return a.Listen(addr, transport.NewTLSConfig(m.TLSConfig()))
}

func cacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, "webcore-autocert")
	return dir, os.MkdirAll(dir, 0o700)
}

// selfSigned returns the certificate pair for the loopback, reusing the one cached in the
// directory if any.
func selfSigned(dir string) (cert, key string, err error) {
	cert = filepath.Join(dir, "localhost.crt")
	key = filepath.Join(dir, "localhost.key")
	if fileExists(cert) && fileExists(key) {
		return cert, key, nil
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"webcore"}},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		NotBefore:             now,
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return "", "", err
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}

	if err = writePEM(cert, "CERTIFICATE", der); err != nil {
		return "", "", err
	}

	return cert, key, writePEM(key, "PRIVATE KEY", privBytes)
}

func writePEM(path, blockType string, data []byte) error {
	return os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: data}), 0o600)
}

func fileExists(filename string) bool {
	stat, err := os.Stat(filename)

	return err == nil && !stat.IsDir()
}
