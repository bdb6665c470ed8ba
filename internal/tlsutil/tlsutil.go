// Package tlsutil provides the HTTP transports used to reach the model backend.
// 安全加固：TLS 1.2+，仅 AEAD 密码套件（后端通过 https 暴露时生效）。
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// BackendTransport returns a transport tuned for a local model server.
// headerTimeout bounds the wait for response headers only, so a long
// generation body is never cut by it. Zero disables the bound.
func BackendTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		// 流式响应逐行转发，禁止透明 gzip 以免缓冲
		DisableCompression: true,
	}
}

// StreamingHTTPClient returns a client without an overall timeout.
// Deadlines for streaming calls come from the request context.
func StreamingHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: BackendTransport(headerTimeout),
	}
}

// SecureHTTPClient returns a client for short request/response calls.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: BackendTransport(timeout),
	}
}
