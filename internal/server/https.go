// internal/server/https.go
package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/acme/autocert"
)

// HTTPSConfig holds HTTPS/TLS configuration.
type HTTPSConfig struct {
	Domain   string `env:"WORKHUB_HTTPS_DOMAIN"`
	CertDir  string `env:"WORKHUB_CERT_DIR"`
	HTTPAddr string `env:"WORKHUB_HTTP_ADDR"`
}

// DefaultHTTPSConfig returns HTTPS settings with no domain configured.
func DefaultHTTPSConfig() HTTPSConfig {
	return HTTPSConfig{
		CertDir:  "certs",
		HTTPAddr: ":80",
	}
}

// Enabled reports whether a domain is configured.
func (c HTTPSConfig) Enabled() bool {
	return c.Domain != ""
}

// ValidateDomain checks that domain can obtain a Let's Encrypt certificate.
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("domain required for HTTPS")
	}
	if strings.EqualFold(domain, "localhost") {
		return fmt.Errorf("Let's Encrypt requires a public domain, not localhost. Use a reverse proxy for local HTTPS")
	}
	if net.ParseIP(strings.Trim(domain, "[]")) != nil {
		return fmt.Errorf("Let's Encrypt requires a domain name, not an IP address")
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") ||
		strings.HasPrefix(domain, "-") || strings.HasSuffix(domain, "-") ||
		strings.Contains(domain, "..") || !strings.Contains(domain, ".") {
		return fmt.Errorf("invalid domain format: %s", domain)
	}
	return nil
}

// NewAutocertManager creates an autocert.Manager for domain caching certificates in
// certDir.
func NewAutocertManager(domain, certDir string) *autocert.Manager {
	return &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domain),
		Cache:      autocert.DirCache(certDir),
	}
}

// NewTLSConfig creates a TLS config using the autocert manager.
func NewTLSConfig(manager *autocert.Manager) *tls.Config {
	return &tls.Config{
		GetCertificate: manager.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
	}
}

// HTTPRedirectHandler redirects every request to the same URI on https://domain.
func HTTPRedirectHandler(domain string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://"+domain+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
}
