package shared

import "context"

type identityContextKey struct{}

// Identity is the caller scope produced by the upstream auth layer.
type Identity struct {
	BusinessID int64
	ActorID    int64
}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.BusinessID == 0 {
		return Identity{}, false
	}
	return id, true
}
