package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgraph-io/ristretto/v2"
)

const hexDigits = "0123456789abcdef"

// NamespaceResolver maps organization identifiers to storage namespaces.
// The mapping is a pure function: bytes in [a-z0-9] are kept and every other
// byte, '_' included, becomes "_xx". Since '_' only ever opens an escape the
// encoding decodes uniquely, so distinct identifiers never collide.
type NamespaceResolver struct {
	prefix string
	maxLen int
}

// NewNamespaceResolver validates prefix and maxLen.
func NewNamespaceResolver(prefix string, maxLen int) (*NamespaceResolver, error) {
	if !validPrefix(prefix) {
		return nil, fmt.Errorf("auth: namespace prefix %q must match [a-z][a-z0-9]*", prefix)
	}
	if maxLen <= len(prefix)+1 {
		return nil, errors.New("auth: namespace max length leaves no room for the identifier")
	}
	return &NamespaceResolver{prefix: prefix, maxLen: maxLen}, nil
}

// Resolve returns the namespace for organizationID.
func (r *NamespaceResolver) Resolve(organizationID string) (string, error) {
	if strings.TrimSpace(organizationID) == "" {
		return "", &NamespaceError{OrganizationID: organizationID, Reason: "organization id is empty"}
	}
	if !utf8.ValidString(organizationID) {
		return "", &NamespaceError{OrganizationID: organizationID, Reason: "organization id is not valid UTF-8"}
	}
	for _, c := range organizationID {
		if unicode.IsControl(c) {
			return "", &NamespaceError{OrganizationID: organizationID, Reason: "organization id contains control characters"}
		}
	}

	var b strings.Builder
	b.Grow(len(r.prefix) + 1 + len(organizationID)*3)
	b.WriteString(r.prefix)
	b.WriteByte('_')
	for i := 0; i < len(organizationID); i++ {
		c := organizationID[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('_')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	if b.Len() > r.maxLen {
		return "", &NamespaceError{
			OrganizationID: organizationID,
			Reason:         fmt.Sprintf("namespace exceeds %d bytes", r.maxLen),
		}
	}
	return b.String(), nil
}

func validPrefix(prefix string) bool {
	if prefix == "" || prefix[0] < 'a' || prefix[0] > 'z' {
		return false
	}
	for i := 1; i < len(prefix); i++ {
		c := prefix[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Resolver is satisfied by NamespaceResolver and CachedResolver.
type Resolver interface {
	Resolve(organizationID string) (string, error)
}

// CachedResolver memoises successful resolutions. Misses recompute; errors
// are not cached.
type CachedResolver struct {
	next  *NamespaceResolver
	cache *ristretto.Cache[string, string]
}

// NewCachedResolver wraps next with a cache holding up to size entries.
func NewCachedResolver(next *NamespaceResolver, size int64) (*CachedResolver, error) {
	if next == nil {
		return nil, errors.New("auth: namespace resolver is required")
	}
	if size <= 0 {
		size = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: namespace cache: %w", err)
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

// Resolve returns the cached namespace or computes and stores it.
func (c *CachedResolver) Resolve(organizationID string) (string, error) {
	if ns, ok := c.cache.Get(organizationID); ok {
		return ns, nil
	}
	ns, err := c.next.Resolve(organizationID)
	if err != nil {
		return "", err
	}
	c.cache.Set(organizationID, ns, 1)
	return ns, nil
}

// Close releases the cache goroutines.
func (c *CachedResolver) Close() {
	c.cache.Close()
}
