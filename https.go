package tinyhttp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/zavakid/tiny-http/internal/address"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// HTTPS adds a TLS listener using the certificate and the key files.
func (a *App) HTTPS(port uint16, cert, key string) *App {
	certificate, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		a.err = fmt.Errorf("tinyhttp: HTTPS: %w", err)
		return a
	}

	return a.TLS(port, &tls.Config{
		Certificates: []tls.Certificate{certificate},
	})
}

// AutoHTTPS enables HTTPS-mode using autocert or generates self-signed certificates if using
// local host
func (a *App) AutoHTTPS(port uint16, domains ...string) *App {
	if address.IsLocalhost(a.host) {
		cert, key, err := generateSelfSignedCert(cacheDir())
		if err != nil {
			a.logger.Warn("AutoHTTPS: can't generate self-signed certificate, disabling TLS", zap.Error(err))
			return a
		}

		return a.HTTPS(port, cert, key)
	}

	return a.TLS(port, a.autocertConfig(domains...))
}

func (a *App) autocertConfig(domains ...string) *tls.Config {
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
	}

	if len(domains) > 0 {
		m.HostPolicy = autocert.HostWhitelist(domains...)
	}

	cache := cacheDir()
	if err := mkdirIfNotExists(cache); err != nil {
		a.logger.Warn("AutoHTTPS: not using a cache", zap.Error(err))
	} else {
		m.Cache = autocert.DirCache(cache)
	}

	cfg := m.TLSConfig()
	// h2 must not be offered
	cfg.NextProtos = []string{"http/1.1", acme.ALPNProto}

	return cfg
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return "/"
}

func cacheDir() string {
	const base = "tinyhttp-autocert"
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches", base)
	case "windows":
		for _, ev := range []string{"APPDATA", "CSIDL_APPDATA", "TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return filepath.Join(v, base)
			}
		}

		return filepath.Join(homeDir(), base)
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, base)
	}
	return filepath.Join(homeDir(), ".cache", base)
}

// generateSelfSignedCert writes a certificate for localhost into the directory, unless it's
// already there.
func generateSelfSignedCert(dir string) (cert, key string, err error) {
	var (
		certFilename = filepath.Join(dir, "localhost.crt")
		keyFilename  = filepath.Join(dir, "localhost.key")
	)

	if certExists(certFilename, keyFilename) {
		return certFilename, keyFilename, nil
	}

	if err := mkdirIfNotExists(dir); err != nil {
		return "", "", err
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", err
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Localhost"}},
		DNSNames:              []string{"localhost"},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return "", "", err
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}

	if err = writePEM(certFilename, "CERTIFICATE", certDER); err != nil {
		return "", "", err
	}

	if err = writePEM(keyFilename, "PRIVATE KEY", privBytes); err != nil {
		return "", "", err
	}

	return certFilename, keyFilename, nil
}

func writePEM(filename, blockType string, data []byte) error {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if err = pem.Encode(file, &pem.Block{Type: blockType, Bytes: data}); err != nil {
		_ = file.Close()
		return err
	}

	return file.Close()
}

func mkdirIfNotExists(dir string) error {
	if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
		return nil
	}

	return os.MkdirAll(dir, 0700)
}

func certExists(cert, key string) bool {
	return fileExists(cert) && fileExists(key)
}

func fileExists(filename string) bool {
	stat, err := os.Stat(filename)

	return err == nil && !stat.IsDir()
}
