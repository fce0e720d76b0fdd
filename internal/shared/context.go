package shared

import "context"

type identityContextKey struct{}

// Identity carries the tenant and actor supplied by the caller. The core
// trusts these values; authentication happens in the outer tiers.
type Identity struct {
	TenantID int64
	ActorID  int64
}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// TenantFromContext returns the tenant id, zero when absent.
func TenantFromContext(ctx context.Context) int64 {
	id, _ := IdentityFromContext(ctx)
	return id.TenantID
}

// ActorFromContext returns the actor id, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := IdentityFromContext(ctx)
	return id.ActorID
}
