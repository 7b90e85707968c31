package middleware

import (
	"net"
	"net/http"

	"github.com/rs/zerolog/log"
)

// LoopbackOnly rejects requests that do not originate from this machine.
// The UI bridge exposes the live pairing code, which must never leave the kiosk.
func LoopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			log.Warn().Str("remoteAddr", r.RemoteAddr).Str("path", r.URL.Path).Msg("rejected non-loopback ui request")
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
