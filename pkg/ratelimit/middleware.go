package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/httpx"
)

// Guard applies a fixed window per client IP to the browse surface.
// A storefront behind a reverse proxy must list the proxy ranges in
// TrustedProxyCIDRs before forwarding headers are believed.
type Guard struct {
	Limiter           Limiter
	Limit             int
	TrustedProxyCIDRs []*net.IPNet
	OnLimited         func()
}

func NewGuard(limiter Limiter, limit int) *Guard {
	return &Guard{Limiter: limiter, Limit: limit}
}

// Middleware rejects callers over the window limit with 429 and a
// Retry-After hint. Without a limiter or a positive limit it passes
// everything through.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Limiter == nil || g.Limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		decision := g.Limiter.Allow("ip:"+g.ClientIP(r), g.Limit)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		retryAfter := int(time.Until(decision.ResetAt).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		if g.OnLimited != nil {
			g.OnLimited()
		}
		httpx.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// ClientIP resolves the caller's address. Forwarding headers count only
// when the direct peer sits inside a trusted proxy range; otherwise any
// client could spoof its way into a fresh window.
func (g *Guard) ClientIP(r *http.Request) string {
	remoteIP := parseIP(r.RemoteAddr)
	if remoteIP == "" {
		remoteIP = r.RemoteAddr
	}
	if remoteIP != "" && g.trustedProxy(remoteIP) {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if ip := parseIP(first); ip != "" {
				return ip
			}
		}
		if realIP := parseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); realIP != "" {
			return realIP
		}
	}
	if remoteIP == "" {
		return "unknown"
	}
	return remoteIP
}

func (g *Guard) trustedProxy(ipStr string) bool {
	if len(g.TrustedProxyCIDRs) == 0 {
		return false
	}
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil {
		return false
	}
	for _, cidr := range g.TrustedProxyCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies parses a comma-separated list of CIDRs or bare IPs,
// skipping entries that do not parse.
func ParseTrustedProxies(raw string) []*net.IPNet {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]*net.IPNet, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			if _, cidr, err := net.ParseCIDR(part); err == nil {
				out = append(out, cidr)
			}
			continue
		}
		ip := net.ParseIP(part)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out
}

func parseIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if net.ParseIP(addr) != nil {
		return addr
	}
	return ""
}
