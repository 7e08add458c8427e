package networking

import (
	"fmt"
	"net"
	"net/url"
)

// IsURL reports whether the string parses as an absolute http(s) URL.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isLoopbackHost reports whether the host portion of a URL refers to
// localhost or a loopback IP.
func isLoopbackHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ValidateEndpointURL verifies that the given endpoint is an absolute URL
// using HTTPS. Plain HTTP is permitted only for loopback hosts, which keeps
// local development and tests working without weakening remote calls.
func ValidateEndpointURL(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("the supplied URL %s is malformed", endpoint)
	}

	if u.Host == "" {
		return fmt.Errorf("the supplied URL %s has no host", endpoint)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopbackHost(u.Host) {
			return nil
		}
		return fmt.Errorf("the supplied URL %s is not HTTPS scheme", endpoint)
	default:
		return fmt.Errorf("the supplied URL %s has unsupported scheme %q", endpoint, u.Scheme)
	}
}
