package httpx

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/idna"
)

// Key identifies a pool bucket: one (host, port) pair.
type Key struct {
	Host string
	Port string
}

func (k Key) String() string { return net.JoinHostPort(k.Host, k.Port) }

// targetKey resolves the dial key for u. Hosts are converted to their ASCII
// form; a missing port defaults from the scheme.
func targetKey(u *url.URL) (Key, error) {
	if u == nil || u.Host == "" {
		return Key{}, ErrUnsupportedURL
	}
	var port string
	switch strings.ToLower(u.Scheme) {
	case "http", "":
		port = "80"
	case "https":
		port = "443"
	default:
		return Key{}, ErrUnsupportedURL
	}
	host := u.Hostname()
	if host == "" {
		return Key{}, ErrUnsupportedURL
	}
	if p := u.Port(); p != "" {
		port = p
	}
	if net.ParseIP(host) == nil {
		a, err := idna.ToASCII(host)
		if err != nil {
			return Key{}, ErrUnsupportedURL
		}
		host = strings.ToLower(a)
	}
	return Key{Host: host, Port: port}, nil
}

// requestTarget is the origin-form request-target for u.
func requestTarget(u *url.URL) string {
	t := u.RequestURI()
	if t == "" {
		t = "/"
	}
	return t
}

// hostHeader is the Host field value for u, in punycode when needed.
func hostHeader(u *url.URL) string {
	if h, err := httpguts.PunycodeHostPort(u.Host); err == nil {
		return h
	}
	return u.Host
}
