package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jmcleod/fleetguard/ratelimit"
)

// RateLimit charges every request against the guard's API limiter, keyed
// by client IP, and answers 429 with Retry-After once the budget is spent.
func (a *API) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := a.extractClientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		if a.guard.IsRateLimited(r.Context(), ip) {
			w.Header().Set("Retry-After", retryAfterString(a.guard.RetryAfter(ip)))
			writeError(w, http.StatusTooManyRequests, "too many requests; try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfterString formats d as whole seconds for the Retry-After header,
// never less than one.
func retryAfterString(d time.Duration) string {
	return strconv.Itoa(max(ratelimit.CeilSeconds(d), 1))
}

// ParseTrustedProxies parses CIDR ranges or bare addresses. Bare
// addresses become single-host prefixes.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// extractClientIP returns the client IP for rate limiting using the API's
// configured trusted proxies.
func (a *API) extractClientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, a.trustedProxies)
}

// extractClientIPWithProxies returns the first parseable address among the
// forwarding headers when RemoteAddr is a trusted proxy, and RemoteAddr
// otherwise. Without trusted proxies a client cannot choose its own
// rate-limit key.
func extractClientIPWithProxies(r *http.Request, trustedProxies []netip.Prefix) string {
	remote, ok := parseIPCandidate(r.RemoteAddr)
	if !ok {
		return ""
	}
	if !fromTrustedProxy(remote, trustedProxies) {
		return remote
	}
	for _, candidate := range forwardedCandidates(r.Header) {
		if ip, ok := parseIPCandidate(candidate); ok {
			return ip
		}
	}
	return remote
}

func fromTrustedProxy(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(trusted, func(p netip.Prefix) bool {
		return p.Contains(addr)
	})
}

// forwardedCandidates lists client address candidates in the order they
// are trusted: X-Forwarded-For, then the for= pairs of Forwarded, then
// X-Real-IP.
func forwardedCandidates(h http.Header) []string {
	var out []string
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		out = append(out, strings.Split(xff, ",")...)
	}
	for _, elem := range strings.FieldsFunc(h.Get("Forwarded"), func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		key, value, found := strings.Cut(strings.TrimSpace(elem), "=")
		if found && strings.EqualFold(key, "for") {
			out = append(out, value)
		}
	}
	if xrip := h.Get("X-Real-IP"); xrip != "" {
		out = append(out, xrip)
	}
	return out
}

// parseIPCandidate accepts bare addresses, host:port pairs, bracketed or
// quoted IPv6 and zoned addresses, and returns the canonical unmapped form.
func parseIPCandidate(raw string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if zone := strings.IndexByte(s, '%'); zone >= 0 {
		s = s[:zone]
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
