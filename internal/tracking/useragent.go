package tracking

import (
	"net/http"
	"strings"

	"github.com/phishly/phishly/internal/domain"
)

// parseUserAgent derives browser, OS, and device type from a raw
// User-Agent string. Detection is deliberately coarse; reporting only
// needs broad buckets.
func parseUserAgent(raw string) (browser, osName, deviceType string) {
	ua := strings.ToLower(raw)

	browser = "unknown"
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "msie"), strings.Contains(ua, "trident"):
		browser = "Internet Explorer"
	}

	osName = "unknown"
	switch {
	case strings.Contains(ua, "windows"):
		osName = "Windows"
	case strings.Contains(ua, "android"):
		osName = "Android"
	// iOS agents advertise "like Mac OS X", so check them first.
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		osName = "iOS"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		osName = "macOS"
	case strings.Contains(ua, "linux"):
		osName = "Linux"
	}

	deviceType = "desktop"
	switch {
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		deviceType = "tablet"
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		deviceType = "mobile"
	}

	return browser, osName, deviceType
}

// requestMeta extracts network and client metadata from an inbound
// request.
func requestMeta(r *http.Request) domain.RequestMeta {
	ua := r.UserAgent()
	browser, osName, device := parseUserAgent(ua)
	return domain.RequestMeta{
		IPAddress:  realIP(r),
		UserAgent:  ua,
		Browser:    browser,
		OS:         osName,
		DeviceType: device,
	}
}

// realIP returns the client address, honoring proxy headers.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
