package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// TokenResolver is the part of Resolver the middleware needs.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// TokenExtractorFunc extracts a token from an HTTP request.
type TokenExtractorFunc func(r *http.Request) string

// Middleware authenticates requests with the Bearer header, falling back to
// the token query parameter that EventSource clients have to use.
func Middleware(resolver TokenResolver) func(next http.Handler) http.Handler {
	return MiddlewareWithExtractors(resolver, BearerTokenExtractor, QueryTokenExtractor("token"))
}

// MiddlewareWithExtractors tries extractors in order and uses the first
// non-empty token.
func MiddlewareWithExtractors(resolver TokenResolver, extractors ...TokenExtractorFunc) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			for _, ex := range extractors {
				if token = ex(r); token != "" {
					break
				}
			}
			userID, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// BearerTokenExtractor reads "Authorization: Bearer <token>".
func BearerTokenExtractor(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// QueryTokenExtractor reads a URL query parameter.
func QueryTokenExtractor(param string) TokenExtractorFunc {
	return func(r *http.Request) string {
		return r.URL.Query().Get(param)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
}
