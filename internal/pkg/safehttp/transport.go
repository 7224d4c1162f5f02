// Package safehttp builds outbound HTTP transports for the scoring system.
package safehttp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Options configures NewTransport.
type Options struct {
	// TLSConfig is used for HTTPS connections, e.g. to present a client
	// certificate. Nil uses the Go defaults.
	TLSConfig *tls.Config

	// BlockPrivate rejects connections to private, loopback and link-local
	// addresses. Enable it when callers may override the downstream URL.
	BlockPrivate bool

	// DialTimeout bounds connection establishment. Defaults to 5s.
	DialTimeout time.Duration
}

// NewTransport returns an http.Transport honoring opts.
func NewTransport(opts Options) *http.Transport {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = opts.TLSConfig
	t.DialContext = dialer.DialContext
	if opts.BlockPrivate {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if err := checkRemote(conn); err != nil {
				conn.Close()
				return nil, err
			}
			return conn, nil
		}
	}
	return t
}

// NewClient returns a client with the given overall timeout over NewTransport.
func NewClient(timeout time.Duration, opts Options) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(opts),
	}
}

func checkRemote(conn net.Conn) error {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("failed to parse remote IP %q", host)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return fmt.Errorf("access to private IP %s is denied", ip)
	}
	return nil
}
