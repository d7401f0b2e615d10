package clientip

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP returns the client address of r without its port. Proxy headers
// are not read here; mount chi's middleware.RealIP in front when the service
// sits behind a trusted proxy so RemoteAddr already holds the forwarded address.
func RealClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = strings.Trim(addr, "[]")
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}
