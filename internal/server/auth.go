package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/junu-go/internal/logging"
)

// apiKeyHeader is accepted alongside "Authorization: Bearer".
const apiKeyHeader = "X-API-Key"

// authMiddleware requires the shared API key on every request. An empty key
// disables the check; New logs that once at startup.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, source := credential(r)
		switch {
		case got == "":
			reject(w, r, "authorization required", `Bearer realm="junu"`)
		case subtle.ConstantTimeCompare([]byte(got), want) != 1:
			// Never log the presented value.
			logging.FromContext(r.Context()).Warn("auth: invalid key",
				slog.String("path", r.URL.Path),
				slog.String("source", source),
			)
			reject(w, r, "invalid token", `Bearer realm="junu", error="invalid_token"`)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func reject(w http.ResponseWriter, r *http.Request, msg, challenge string) {
	w.Header().Set("WWW-Authenticate", challenge)
	writeStatus(w, r, http.StatusUnauthorized, msg)
}

// credential returns the presented key and the header it came from. The
// Authorization header wins when both are set.
func credential(r *http.Request) (key, source string) {
	if tok := bearerToken(r); tok != "" {
		return tok, "authorization"
	}
	if k := strings.TrimSpace(r.Header.Get(apiKeyHeader)); k != "" {
		return k, "x-api-key"
	}
	return "", ""
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" when the header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
