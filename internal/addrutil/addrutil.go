package addrutil

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// HTTPURL turns a latency destination into a URL suitable for an HTTP probe.
// Bare hosts get an http:// scheme.
func HTTPURL(dest string) string {
	d := strings.TrimSpace(dest)
	if d == "" {
		return ""
	}
	if !strings.Contains(d, "://") {
		d = "http://" + d
	}
	return d
}

// PingHost extracts the host a round-trip probe should target.
// Destinations may be URLs, host:port pairs or bare hosts.
func PingHost(dest string) string {
	d := strings.TrimSpace(dest)
	if d == "" {
		return ""
	}
	if strings.Contains(d, "://") {
		u, err := url.Parse(d)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}
	return hostFromAddr(d)
}

// Iperf3Target splits an iperf3 server destination into host and port.
// port is 0 when the destination carries none.
func Iperf3Target(dest string) (string, int) {
	d := strings.TrimSpace(dest)
	if d == "" {
		return "", 0
	}
	if h, p, err := net.SplitHostPort(d); err == nil {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 {
			return h, 0
		}
		return h, port
	}
	return hostFromAddr(d), 0
}

func hostFromAddr(addr string) string {
	a := strings.TrimSpace(addr)
	if a == "" {
		return ""
	}

	// Fast path: "host:port" (IPv4 or bracketed IPv6).
	if h, _, err := net.SplitHostPort(a); err == nil {
		return h
	}

	// Raw IPv6 without port.
	if strings.Count(a, ":") > 1 {
		return strings.Trim(a, "[]")
	}
	return a
}
