// Package origin implements the browser Origin policy shared by the
// WebSocket upgrader and the HTTP CORS layer.
package origin

import (
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Policy decides which browser origins may talk to the server.
//
// An empty Allowed list means same-host only. "*" allows any origin.
type Policy struct {
	Allowed []string
}

// Check validates r's Origin header. Requests without an Origin header (CLI
// tools, server-to-server) are allowed and return present=false.
func (p Policy) Check(r *http.Request) (normalized string, present, ok bool) {
	raw := r.Header.Get("Origin")
	if strings.TrimSpace(raw) == "" {
		return "", false, true
	}
	normalized, host, valid := NormalizeHeader(raw)
	if !valid {
		return "", true, false
	}
	return normalized, true, IsAllowed(normalized, host, r.Host, p.Allowed)
}

// CheckOrigin has the shape of websocket.Upgrader.CheckOrigin.
func (p Policy) CheckOrigin(r *http.Request) bool {
	_, _, ok := p.Check(r)
	return ok
}

// NormalizeHeader validates a browser Origin header and returns
// scheme://host[:port] with default ports removed, plus the host[:port] part.
//
// The opaque origin "null" is returned unchanged with an empty host.
func NormalizeHeader(header string) (normalized, host string, ok bool) {
	trimmed := strings.TrimSpace(header)
	switch trimmed {
	case "":
		return "", "", false
	case "null":
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}
	host, ok = canonicalHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// IsAllowed reports whether a normalized origin may access requestHost.
//
// With a non-empty allow list the origin must be listed (or the list must
// contain "*"). Otherwise the origin's host[:port] must equal the request
// Host. Schemes are not compared: TLS is often terminated by a proxy in front
// of the server.
func IsAllowed(normalized, originHost, requestHost string, allowed []string) bool {
	if len(allowed) > 0 {
		return slices.Contains(allowed, "*") || slices.Contains(allowed, normalized)
	}

	scheme, _, found := strings.Cut(normalized, "://")
	if !found || (scheme != "http" && scheme != "https") {
		return false
	}
	reqHost, ok := canonicalHost(requestHost, scheme)
	return ok && reqHost == originHost
}

func canonicalHost(authority, scheme string) (string, bool) {
	hostname, rawPort, ok := splitHostPort(strings.TrimSpace(authority))
	if !ok {
		return "", false
	}
	hostname = strings.ToLower(hostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitHostPort splits host[:port]. IPv6 literals must be bracketed; the
// returned hostname has the brackets stripped.
func splitHostPort(authority string) (hostname, port string, ok bool) {
	if authority == "" {
		return "", "", false
	}
	if rest, isV6 := strings.CutPrefix(authority, "["); isV6 {
		hostname, after, found := strings.Cut(rest, "]")
		if !found {
			return "", "", false
		}
		if after == "" {
			return hostname, "", true
		}
		port, ok := strings.CutPrefix(after, ":")
		if !ok || port == "" {
			return "", "", false
		}
		return hostname, port, true
	}

	switch strings.Count(authority, ":") {
	case 0:
		return authority, "", true
	case 1:
		hostname, port, _ := strings.Cut(authority, ":")
		if hostname == "" || port == "" {
			return "", "", false
		}
		return hostname, port, true
	default:
		return "", "", false
	}
}
