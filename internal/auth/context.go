package auth

import (
	"context"
	"time"
)

type ctxKey int

const (
	claimsKey ctxKey = iota
	tenantKey
)

// Claims contains the verified token details we care about.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Scope     string
	Raw       map[string]any
}

// WithClaims stores auth claims in a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns claims from a context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// WithTenant stores the caller's tenant id in a context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantFromContext returns the tenant id resolved for the request, or "".
func TenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantKey).(string)
	return tenantID
}

// TenantFromClaims reads the tenant from the named claim. Client-credentials tokens
// carry client_id; when the claim is absent the subject is used.
func TenantFromClaims(claims *Claims, claimName string) string {
	if claims == nil {
		return ""
	}
	if claimName != "" {
		if v, ok := claims.Raw[claimName].(string); ok && v != "" {
			return v
		}
	}
	return claims.Subject
}
