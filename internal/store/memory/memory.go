// Package memory holds process-local stores for development and tests. The
// revocation set here is not shared between instances.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"rollcall.app/internal/auth"
	"rollcall.app/internal/ids"
	"rollcall.app/internal/members"
)

var (
	_ auth.CredentialRepository = (*Credentials)(nil)
	_ auth.IdentitySource       = (*Credentials)(nil)
	_ auth.RevocationStore      = (*Revocations)(nil)
	_ members.Repository        = (*Members)(nil)
)

// Credentials is an in-memory credential repository keyed by email.
type Credentials struct {
	mu      sync.RWMutex
	byEmail map[string]auth.CredentialRecord
}

func NewCredentials() *Credentials {
	return &Credentials{byEmail: make(map[string]auth.CredentialRecord)}
}

func (c *Credentials) FindByEmail(_ context.Context, email string) (auth.CredentialRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return auth.CredentialRecord{}, auth.ErrNotFound
	}
	return rec, nil
}

func (c *Credentials) Create(_ context.Context, rec auth.CredentialRecord) (auth.CredentialRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byEmail[rec.Email]; ok {
		return auth.CredentialRecord{}, auth.ErrConflict
	}
	for _, existing := range c.byEmail {
		if existing.SubjectID == rec.SubjectID {
			return auth.CredentialRecord{}, auth.ErrConflict
		}
	}
	if rec.Status == "" {
		rec.Status = auth.StatusActive
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	c.byEmail[rec.Email] = rec
	return rec, nil
}

func (c *Credentials) UpdatePasswordHash(_ context.Context, subjectID, passwordHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for email, rec := range c.byEmail {
		if rec.SubjectID == subjectID {
			rec.PasswordHash = passwordHash
			rec.UpdatedAt = time.Now().UTC()
			c.byEmail[email] = rec
			return nil
		}
	}
	return auth.ErrNotFound
}

func (c *Credentials) Identity(_ context.Context, subjectID, organizationID string) (auth.CredentialRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, rec := range c.byEmail {
		if rec.SubjectID == subjectID && rec.OrganizationID == organizationID {
			return rec, nil
		}
	}
	return auth.CredentialRecord{}, auth.ErrNotFound
}

// SetRole changes a subject's role; the next refresh picks it up.
func (c *Credentials) SetRole(subjectID string, role auth.Role) bool {
	return c.update(subjectID, func(rec *auth.CredentialRecord) { rec.Role = role })
}

// SetStatus enables or disables a subject.
func (c *Credentials) SetStatus(subjectID, status string) bool {
	return c.update(subjectID, func(rec *auth.CredentialRecord) { rec.Status = status })
}

func (c *Credentials) update(subjectID string, fn func(*auth.CredentialRecord)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for email, rec := range c.byEmail {
		if rec.SubjectID == subjectID {
			fn(&rec)
			rec.UpdatedAt = time.Now().UTC()
			c.byEmail[email] = rec
			return true
		}
	}
	return false
}

// Revocations is a mutex-guarded revocation set with lazy expiry.
type Revocations struct {
	mu      sync.Mutex
	records map[string]auth.RevocationRecord
	now     func() time.Time
}

func NewRevocations(now func() time.Time) *Revocations {
	if now == nil {
		now = time.Now
	}
	return &Revocations{records: make(map[string]auth.RevocationRecord), now: now}
}

func (r *Revocations) InsertIfAbsent(_ context.Context, rec auth.RevocationRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[rec.TokenID]; ok && !r.expired(existing) {
		return false, nil
	}
	r.records[rec.TokenID] = rec
	return true, nil
}

func (r *Revocations) Exists(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[tokenID]
	if ok && r.expired(rec) {
		delete(r.records, tokenID)
		return false, nil
	}
	return ok, nil
}

func (r *Revocations) expired(rec auth.RevocationRecord) bool {
	return !rec.ExpiresAt.IsZero() && !r.now().Before(rec.ExpiresAt)
}

// Members keeps one member list per namespace.
type Members struct {
	mu          sync.RWMutex
	byNamespace map[string]map[string]members.Member
}

func NewMembers() *Members {
	return &Members{byNamespace: make(map[string]map[string]members.Member)}
}

func (m *Members) Create(_ context.Context, namespace string, in members.Member) (members.Member, error) {
	if namespace == "" {
		return members.Member{}, &auth.NamespaceError{Reason: "namespace is required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = ids.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	tenant, ok := m.byNamespace[namespace]
	if !ok {
		tenant = make(map[string]members.Member)
		m.byNamespace[namespace] = tenant
	}
	if _, dup := tenant[in.ID]; dup {
		return members.Member{}, auth.ErrConflict
	}
	tenant[in.ID] = in
	return in, nil
}

func (m *Members) List(_ context.Context, namespace string, opts members.ListOptions) ([]members.Member, error) {
	if namespace == "" {
		return nil, &auth.NamespaceError{Reason: "namespace is required"}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]members.Member, 0, len(m.byNamespace[namespace]))
	for id, mem := range m.byNamespace[namespace] {
		if id > opts.After {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
