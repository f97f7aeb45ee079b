package auth

import "context"

type authenticationKey struct{}

func WithAuthentication(ctx context.Context, a *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey{}, a)
}

func FromContext(ctx context.Context) (*Authentication, bool) {
	a, ok := ctx.Value(authenticationKey{}).(*Authentication)
	return a, ok && a != nil
}

// PrincipalFromContext returns the authenticated principal. Anonymous
// requests report false.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	a, ok := FromContext(ctx)
	if !ok || a.Anonymous {
		return Principal{}, false
	}
	return a.Principal, true
}
