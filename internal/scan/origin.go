package scan

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// ErrUnsupportedURL is returned for URLs that have no scannable origin,
// such as browser-internal pages.
var ErrUnsupportedURL = errors.New("url has no http(s) origin")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizeOrigin reduces a URL to its origin: lower-cased scheme and host,
// an explicit port only when it is not the scheme default, and a trailing
// slash. "https://Example.com:443/a?b" becomes "https://example.com/".
func NormalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrUnsupportedURL
	}

	scheme := strings.ToLower(u.Scheme)
	if _, ok := defaultPorts[scheme]; !ok {
		return "", ErrUnsupportedURL
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", ErrUnsupportedURL
	}

	port := u.Port()
	if port == defaultPorts[scheme] {
		port = ""
	}

	var hostport string
	switch {
	case port != "":
		hostport = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		hostport = "[" + host + "]"
	default:
		hostport = host
	}

	return scheme + "://" + hostport + "/", nil
}
