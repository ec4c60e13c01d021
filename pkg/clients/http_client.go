// Package clients builds the outbound HTTP clients and request limiters used
// by HTTP based connectors. Each session owns its client; nothing here is
// process-wide.
package clients

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Connection settings
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`

	// HTTP/2 is negotiated over TLS when the server offers it
	EnableHTTP2 bool `json:"enable_http2"`

	// Timeouts
	DialTimeout         time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `json:"tls_handshake_timeout"`
	RequestTimeout      time.Duration `json:"request_timeout"`
	KeepAlive           time.Duration `json:"keep_alive"`

	// TLS settings
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
	TLSMinVersion      uint16 `json:"tls_min_version"`
}

// DefaultHTTPConfig returns the defaults for a single crawl session.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		EnableHTTP2:         true,
		DialTimeout:         30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		RequestTimeout:      2 * time.Minute,
		KeepAlive:           30 * time.Second,
		TLSMinVersion:       tls.VersionTLS12,
	}
}

// NewHTTPClient creates a client with its own transport.
func NewHTTPClient(cfg *HTTPConfig) (*http.Client, error) {
	if cfg == nil {
		cfg = DefaultHTTPConfig()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         cfg.TLSMinVersion,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in through security.tls_skip_verify
		},
	}
	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to configure HTTP/2 transport")
		}
	}

	return &http.Client{Transport: transport, Timeout: cfg.RequestTimeout}, nil
}
