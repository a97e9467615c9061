package middleware

import (
	"context"

	"github.com/Adamtbull/friction-ai/internal/identity"
)

type identityKey struct{}

func WithIdentity(ctx context.Context, ident identity.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// IdentityFrom returns the verified caller stored by Auth. Handlers behind
// the auth middleware can rely on ok being true.
func IdentityFrom(ctx context.Context) (identity.Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(identity.Identity)
	return ident, ok
}
