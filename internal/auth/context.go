package auth

import "context"

type identityContextKey struct{}
type namespaceContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, identity IdentityClaims) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (IdentityClaims, bool) {
	if ctx == nil {
		return IdentityClaims{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(IdentityClaims)
	if !ok || v.SubjectID == "" {
		return IdentityClaims{}, false
	}
	return v, true
}

// ContextWithNamespace stores the resolved tenant namespace inside the context.
func ContextWithNamespace(ctx context.Context, namespace string) context.Context {
	if namespace == "" {
		return ctx
	}
	return context.WithValue(ctx, namespaceContextKey{}, namespace)
}

// NamespaceFromContext returns the tenant namespace if it was previously attached.
func NamespaceFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(namespaceContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
