package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cyderes/employee-batch-service/internal/apperrors"
)

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	TenantClaim   string
	RequireScopes []string
	PublicPaths   map[string]bool
	DisableAuth   bool
	LocalTenant   string
}

// Middleware enforces bearer token auth and injects claims and tenant into the request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.PublicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.DisableAuth {
				claims := &Claims{
					Subject: cfg.LocalTenant,
					Issuer:  "local",
					Raw:     map[string]any{"sub": cfg.LocalTenant},
				}
				ctx := WithTenant(WithClaims(r.Context(), claims), cfg.LocalTenant)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			logger := zerolog.Ctx(r.Context())

			if verifier == nil {
				respondUnauthorized(w, "auth verifier not configured")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn().Str("path", r.URL.Path).Msg("auth failure: missing Authorization header")
				respondUnauthorized(w, "missing authorization header")
				return
			}

			token, ok := extractBearerToken(authHeader)
			if !ok {
				logger.Warn().Str("path", r.URL.Path).Msg("auth failure: malformed Authorization header")
				respondUnauthorized(w, "invalid authorization header")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.Warn().Err(err).Str("path", r.URL.Path).Msg("auth failure: token invalid")
				respondUnauthorized(w, "invalid token")
				return
			}

			if len(cfg.RequireScopes) > 0 && !hasScopes(claims.Scope, cfg.RequireScopes) {
				logger.Warn().Str("path", r.URL.Path).Msg("auth failure: missing scopes")
				respondUnauthorized(w, "insufficient scope")
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = WithTenant(ctx, TenantFromClaims(claims, cfg.TenantClaim))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func hasScopes(scopeClaim string, required []string) bool {
	if scopeClaim == "" {
		return false
	}
	available := map[string]struct{}{}
	for _, s := range strings.Fields(scopeClaim) {
		available[s] = struct{}{}
	}
	for _, scope := range required {
		if _, ok := available[scope]; !ok {
			return false
		}
	}
	return true
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(apperrors.Unauthorized(message).Body())
}
