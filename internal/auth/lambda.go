package auth

import (
	"net/http"
	"strings"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
)

// AuthorizerMiddleware trusts the claims API Gateway's JWT authorizer already
// verified and attaches them to the request. Outside Lambda it is a no-op.
func AuthorizerMiddleware(tenantClaim string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqCtx, ok := core.GetAPIGatewayV2ContextFromContext(r.Context())
			if !ok || reqCtx.Authorizer == nil || reqCtx.Authorizer.JWT == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims := claimsFromAuthorizer(reqCtx.Authorizer.JWT.Claims, reqCtx.Authorizer.JWT.Scopes)
			ctx := WithClaims(r.Context(), claims)
			if tenantID := TenantFromClaims(claims, tenantClaim); tenantID != "" {
				ctx = WithTenant(ctx, tenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFromAuthorizer(raw map[string]string, scopes []string) *Claims {
	claims := &Claims{
		Subject: raw["sub"],
		Issuer:  raw["iss"],
		Scope:   raw["scope"],
		Raw:     make(map[string]any, len(raw)),
	}
	if claims.Scope == "" && len(scopes) > 0 {
		claims.Scope = strings.Join(scopes, " ")
	}
	if aud := raw["aud"]; aud != "" {
		claims.Audience = []string{aud}
	}
	for k, v := range raw {
		claims.Raw[k] = v
	}
	return claims
}
