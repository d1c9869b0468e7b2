package auth

import "context"

type claimsKey struct{}

// WithClaims attaches validated session claims to ctx.
func WithClaims(ctx context.Context, claims *JWTClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the session claims, or nil when signed out.
func ClaimsFromContext(ctx context.Context) *JWTClaims {
	claims, _ := ctx.Value(claimsKey{}).(*JWTClaims)
	return claims
}
