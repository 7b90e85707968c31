package middleware

import (
	"net/http"
)

type SecurityHeadersMiddleware struct {
	allowFraming bool
}

// NewSecurityHeadersMiddleware sets headers for the kiosk UI bridge. The
// kiosk shell may embed the bridge in a webview frame, so framing can be
// allowed from the same origin.
func NewSecurityHeadersMiddleware(allowFraming bool) *SecurityHeadersMiddleware {
	return &SecurityHeadersMiddleware{allowFraming: allowFraming}
}

func (m *SecurityHeadersMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		frameAncestors := "'none'"
		if m.allowFraming {
			frameAncestors = "'self'"
		} else {
			w.Header().Set("X-Frame-Options", "DENY")
		}

		csp := "default-src 'none'; " +
			"connect-src 'self'; " +
			"frame-ancestors " + frameAncestors + "; " +
			"base-uri 'none'"

		w.Header().Set("Content-Security-Policy", csp)

		next.ServeHTTP(w, r)
	})
}
