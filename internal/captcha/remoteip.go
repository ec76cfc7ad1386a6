package captcha

import (
	"net"
	"net/http"
	"strings"
)

// ResolveClientIP extracts the originating client address for the remoteip
// verification parameter.
//
// With trusted proxies configured, those entries are removed from the
// X-Forwarded-For chain and the last remaining hop (closest untrusted to the
// origin) wins. Without them, the first entry is used — the client slot of a
// "client, proxy1, proxy2" chain. That path is spoofable by anyone setting
// the header; configure trusted proxies where it matters. When no forwarded
// header is present, the direct connection address is used.
func ResolveClientIP(r *http.Request, trustedProxies []string) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded == "" {
		return remoteAddrHost(r)
	}

	parts := strings.Split(forwarded, ",")
	ips := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ips = append(ips, p)
		}
	}
	if len(ips) == 0 {
		return remoteAddrHost(r)
	}
	if len(ips) == 1 {
		return ips[0]
	}

	if len(trustedProxies) > 0 {
		trusted := make(map[string]struct{}, len(trustedProxies))
		for _, t := range trustedProxies {
			trusted[t] = struct{}{}
		}
		remaining := ips[:0]
		for _, ip := range ips {
			if _, ok := trusted[ip]; !ok {
				remaining = append(remaining, ip)
			}
		}
		if len(remaining) == 0 {
			return remoteAddrHost(r)
		}
		return remaining[len(remaining)-1]
	}

	return ips[0]
}

func remoteAddrHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
