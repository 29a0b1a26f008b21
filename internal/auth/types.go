package auth

import (
	"strings"
	"time"
)

// Role is the closed set of tenant roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Roles lists every role the permission matrix must cover.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleMember}
}

// ParseRole normalises raw and reports whether it names a known role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	return role, role.Valid()
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMember:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// TokenType distinguishes access credentials from refresh credentials.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Credential statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// CredentialRecord is the persisted login credential of a subject.
type CredentialRecord struct {
	SubjectID      string
	OrganizationID string
	Email          string
	PasswordHash   string
	Role           Role
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Active reports whether the record may authenticate.
func (c CredentialRecord) Active() bool {
	return c.Status == "" || c.Status == StatusActive
}

// Identity converts the record into the claims carried by an access token.
func (c CredentialRecord) Identity() IdentityClaims {
	return IdentityClaims{
		SubjectID:      c.SubjectID,
		Email:          c.Email,
		OrganizationID: c.OrganizationID,
		Role:           c.Role,
	}
}

// IdentityClaims is the authenticated caller. It is a value type and is never
// mutated after construction.
type IdentityClaims struct {
	SubjectID      string `json:"subjectId"`
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
	Role           Role   `json:"role"`
}

// RefreshClaims is the verified content of a refresh token. It deliberately
// carries no role.
type RefreshClaims struct {
	TokenID        string
	FamilyID       string
	SubjectID      string
	OrganizationID string
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// TokenPair is an access/refresh credential pair.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Revocation reasons.
const (
	ReasonRotated = "rotated"
	ReasonRevoked = "revoked"
)

// RevocationRecord marks a refresh token (or a whole session family) as no
// longer usable.
type RevocationRecord struct {
	TokenID   string
	FamilyID  string
	Reason    string
	RevokedAt time.Time
	ExpiresAt time.Time
}

// FamilyKey is the revocation key that invalidates every token of a session family.
func FamilyKey(familyID string) string {
	return "family:" + familyID
}

// RefreshState is the lifecycle position of a refresh token.
type RefreshState string

const (
	RefreshActive  RefreshState = "active"
	RefreshRotated RefreshState = "rotated"
	RefreshRevoked RefreshState = "revoked"
	RefreshExpired RefreshState = "expired"
)
