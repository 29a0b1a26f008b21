package auth

import "context"

// CredentialRepository is the external credential store. Implementations
// return ErrNotFound for unknown subjects and wrap retryable faults with
// Transient.
type CredentialRepository interface {
	FindByEmail(ctx context.Context, email string) (CredentialRecord, error)
	Create(ctx context.Context, rec CredentialRecord) (CredentialRecord, error)
	UpdatePasswordHash(ctx context.Context, subjectID, passwordHash string) error
}

// IdentitySource is the authoritative source of a subject's current role.
type IdentitySource interface {
	Identity(ctx context.Context, subjectID, organizationID string) (CredentialRecord, error)
}

// RevocationStore is the shared revocation set. InsertIfAbsent must be an
// atomic check-and-set visible to every instance: it reports true only for the
// single caller that created the record.
type RevocationStore interface {
	InsertIfAbsent(ctx context.Context, rec RevocationRecord) (bool, error)
	Exists(ctx context.Context, tokenID string) (bool, error)
}
