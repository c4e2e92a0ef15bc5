package ws

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// DefaultSubprotocol is offered when neither an explicit list nor a
// Sec-WebSocket-Protocol header names one.
const DefaultSubprotocol = "graphql-ws"

// TLSOptions are the user-facing TLS settings of a connection.
type TLSOptions struct {
	InsecureSkipVerify *bool  `yaml:"insecureSkipVerify,omitempty"`
	ServerName         string `yaml:"serverName,omitempty"`
	CAFile             string `yaml:"caFile,omitempty"`
	CertFile           string `yaml:"certFile,omitempty"`
	KeyFile            string `yaml:"keyFile,omitempty"`
}

// IsZero reports whether no option is set.
func (o TLSOptions) IsZero() bool {
	return o.InsecureSkipVerify == nil && o.ServerName == "" &&
		o.CAFile == "" && o.CertFile == "" && o.KeyFile == ""
}

// MergeTLS overlays override on base. Fields set in override win.
func MergeTLS(base, override TLSOptions) TLSOptions {
	out := base
	if override.InsecureSkipVerify != nil {
		out.InsecureSkipVerify = override.InsecureSkipVerify
	}
	if override.ServerName != "" {
		out.ServerName = override.ServerName
	}
	if override.CAFile != "" {
		out.CAFile = override.CAFile
	}
	if override.CertFile != "" {
		out.CertFile = override.CertFile
	}
	if override.KeyFile != "" {
		out.KeyFile = override.KeyFile
	}
	return out
}

// Config builds a *tls.Config. It returns nil when no option is set so the
// dialer keeps its defaults.
func (o TLSOptions) Config() (*tls.Config, error) {
	if o.IsZero() {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName: o.ServerName,
		MinVersion: tls.VersionTLS12,
	}
	if o.InsecureSkipVerify != nil {
		cfg.InsecureSkipVerify = *o.InsecureSkipVerify
	}

	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", o.CAFile)
		}
		cfg.RootCAs = pool
	}

	if o.CertFile != "" || o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// Subprotocols returns the sub-protocols to offer and the headers to send
// without the Sec-WebSocket-Protocol entry. Explicit protocols come first,
// then any listed in the header (matched case-insensitively, comma
// separated). Duplicates are dropped. If nothing is named the result is
// DefaultSubprotocol.
func Subprotocols(explicit []string, headers map[string]string) ([]string, http.Header) {
	seen := make(map[string]bool)
	var protocols []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		protocols = append(protocols, p)
	}

	for _, p := range explicit {
		add(p)
	}

	rest := make(http.Header, len(headers))
	for name, value := range headers {
		if strings.EqualFold(name, "Sec-WebSocket-Protocol") {
			for _, p := range strings.Split(value, ",") {
				add(p)
			}
			continue
		}
		rest.Set(name, value)
	}

	if len(protocols) == 0 {
		protocols = []string{DefaultSubprotocol}
	}
	return protocols, rest
}
