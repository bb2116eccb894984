package fetcher

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/quarrydev/quarry/pkg/config"
)

// connectionManager owns one keep-alive HTTP client per registry host,
// configured once from the session's TLS settings. Connections are reused
// across every request the session issues.
type connectionManager struct {
	ssl     config.SSLConfig
	timeout time.Duration
	clients map[string]*http.Client
}

func newConnectionManager(ssl config.SSLConfig, timeout time.Duration) *connectionManager {
	return &connectionManager{
		ssl:     ssl,
		timeout: timeout,
		clients: make(map[string]*http.Client),
	}
}

// connectionFor returns the client for host, creating it on first use.
// Repeated calls return the same client, keeping the underlying
// connections alive for the whole session.
func (m *connectionManager) connectionFor(host string) (*http.Client, error) {
	if c, ok := m.clients[host]; ok {
		return c, nil
	}

	tlsConfig, err := m.tlsConfig()
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   m.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   m.timeout,
		// Redirects are followed by redirectFollower so that credential
		// propagation and the depth limit stay under our control.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	m.clients[host] = client
	return client, nil
}

// tlsConfig builds the session TLS configuration: verification mode,
// trusted roots (explicit CA file/dir or system defaults), and an optional
// client certificate pair for mutual TLS.
func (m *connectionManager) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{}

	if m.ssl.VerifyMode == "none" {
		cfg.InsecureSkipVerify = true
	}

	if m.ssl.CACert != "" {
		pool, err := loadCertPool(m.ssl.CACert)
		if err != nil {
			return nil, fmt.Errorf("loading CA certificates from %s: %w", m.ssl.CACert, err)
		}
		cfg.RootCAs = pool
	}

	if m.ssl.ClientCert != "" && m.ssl.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(m.ssl.ClientCert, m.ssl.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// loadCertPool reads PEM roots from a file or from every file in a
// directory.
func loadCertPool(path string) (*x509.CertPool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	add := func(p string) error {
		pem, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("no certificates found in %s", p)
		}
		return nil
	}

	if !info.IsDir() {
		if err := add(path); err != nil {
			return nil, err
		}
		return pool, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	loaded := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := add(filepath.Join(path, e.Name())); err != nil {
			continue // skip non-PEM files in the directory
		}
		loaded++
	}
	if loaded == 0 {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
