package monitor

import (
	"net"
	"net/url"
	"strings"
)

// isAllowedOrigin applies the browser origin policy: requests without an
// Origin header (curl, native clients) pass, an empty allow-list means
// same-origin only, "*" admits everyone, and "*.example.com" entries match
// by host suffix.
func (h *Hub) isAllowedOrigin(origin string, host string) bool {
	if origin == "" {
		return true
	}

	h.mu.RLock()
	allowed := append([]string(nil), h.allowedOrigins...)
	h.mu.RUnlock()

	if len(allowed) == 0 {
		return sameOrigin(origin, host)
	}

	originHost := hostOf(origin)
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		if strings.EqualFold(entry, origin) {
			return true
		}
		if strings.HasPrefix(entry, "*.") {
			suffix := strings.TrimPrefix(entry, "*.")
			if originHost != "" && (originHost == suffix || strings.HasSuffix(originHost, "."+suffix)) {
				return true
			}
		}
		if entryHost := hostOf(entry); entryHost != "" && originHost != "" && strings.EqualFold(entryHost, originHost) {
			return true
		}
	}
	return false
}

func sameOrigin(origin string, host string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(stripPort(parsed.Host), stripPort(host))
}

// hostOf extracts the hostname from an origin URL or bare host string.
func hostOf(origin string) string {
	parsed, err := url.Parse(origin)
	if err == nil && parsed.Host != "" {
		return stripPort(parsed.Host)
	}
	return stripPort(origin)
}

func stripPort(host string) string {
	if host == "" {
		return host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	}
	return host
}
