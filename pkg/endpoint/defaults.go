package endpoint

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Defaults are the connection settings shared by every endpoint of a
// registry. They are applied once, when the transport is built.
type Defaults struct {
	Timeout time.Duration
	TLS     TLSOptions
	Proxy   ProxyOptions
}

// TLSOptions mirrors the TLS material a transport can be configured with.
type TLSOptions struct {
	CACert     string
	ClientCert string
	ClientKey  string
	ServerName string
	Insecure   bool
}

// ProxyOptions describes an HTTP(S) proxy. A zero value means no proxy.
type ProxyOptions struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Enabled reports whether a proxy host is set.
func (p ProxyOptions) Enabled() bool { return p.Host != "" }

// URL renders the proxy as http://[user:pass@]host[:port], or nil when no
// proxy is configured.
func (p ProxyOptions) URL() *url.URL {
	if !p.Enabled() {
		return nil
	}
	host := p.Host
	if p.Port > 0 {
		host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	u := &url.URL{Scheme: "http", Host: host}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}
