package utils

import (
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout         = 10 * time.Second
	defaultTLSHandshakeTimeout = 5 * time.Second
	defaultIdleConnTimeout     = 30 * time.Second
)

// NewHTTPClient returns a client whose every phase is bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	handshake := defaultTLSHandshakeTimeout
	if handshake > timeout {
		handshake = timeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          4,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   handshake,
			ResponseHeaderTimeout: timeout,
		},
	}
}
