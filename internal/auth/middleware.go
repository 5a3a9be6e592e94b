package auth

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/af-corp/tiergate/internal/httputil"
	"github.com/af-corp/tiergate/internal/profile"
)

// Identity-shaped headers a client might send to impersonate someone.
// They are dropped before any handler runs; identity is assigned here,
// server-side, and nowhere else.
var spoofableHeaders = []string{
	"X-Tiergate-Sender",
	"X-Tiergate-Channel",
	"X-Tiergate-Level",
}

// Middleware returns chi middleware that establishes the request's identity
// and resolves its capability profile. A valid Bearer key maps to the key's
// sender id with allow-list membership; no key at all yields a synthetic
// anonymous sender keyed by remote address; an invalid key is rejected
// outright. The resolver is fetched per request so config reloads take
// effect without a restart.
func Middleware(store KeyStore, resolver func() *profile.Resolver, channel string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			for _, h := range spoofableHeaders {
				r.Header.Del(h)
			}

			senderID := ""
			allowListed := false

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				token := strings.TrimPrefix(authHeader, "Bearer ")
				if token == authHeader || token == "" {
					httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <api-key>")
					return
				}

				key, err := store.Lookup(r.Context(), HashKey(token))
				if err != nil {
					slog.Error("key lookup failed", "error", err, "key_prefix", safePrefix(token))
					httputil.WriteInternalError(w, reqID, "Internal error during authentication")
					return
				}
				if key == nil {
					slog.Warn("auth failed: key not found", "key_prefix", safePrefix(token))
					httputil.WriteAuthError(w, reqID, "Invalid API key")
					return
				}
				senderID = key.SenderID
				allowListed = true
			} else {
				senderID = "anon:" + remoteHost(r)
			}

			prof := resolver().Resolve(senderID, channel, allowListed)
			ac := &Context{
				SenderID: senderID,
				Channel:  channel,
				Profile:  &prof,
			}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ac)))
		})
	}
}

// remoteHost returns the bare host of the client address.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// safePrefix returns a safe-to-log prefix of an API key (never the full key).
func safePrefix(key string) string {
	if len(key) > 16 {
		return key[:16] + "..."
	}
	return key
}
