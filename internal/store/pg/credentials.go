package pg

import (
	"context"
	"strings"
	"time"

	"rollcall.app/internal/auth"
)

var (
	_ auth.CredentialRepository = (*Store)(nil)
	_ auth.IdentitySource       = (*Store)(nil)
)

const credentialColumns = `subject_id, organization_id, email, password_hash, role, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (auth.CredentialRecord, error) {
	var (
		rec  auth.CredentialRecord
		role string
	)
	if err := row.Scan(&rec.SubjectID, &rec.OrganizationID, &rec.Email, &rec.PasswordHash, &role, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return auth.CredentialRecord{}, err
	}
	rec.Role = auth.Role(role)
	return rec, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (auth.CredentialRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+credentialColumns+`
		from credentials
		where email = $1
	`, strings.ToLower(strings.TrimSpace(email)))
	rec, err := scanCredential(row)
	if err != nil {
		return auth.CredentialRecord{}, classify("credentials.find_by_email", err)
	}
	return rec, nil
}

func (s *Store) Identity(ctx context.Context, subjectID, organizationID string) (auth.CredentialRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+credentialColumns+`
		from credentials
		where subject_id = $1 and organization_id = $2
	`, subjectID, organizationID)
	rec, err := scanCredential(row)
	if err != nil {
		return auth.CredentialRecord{}, classify("credentials.identity", err)
	}
	return rec, nil
}

// Create inserts rec. A duplicate email or subject id yields auth.ErrConflict.
func (s *Store) Create(ctx context.Context, rec auth.CredentialRecord) (auth.CredentialRecord, error) {
	if rec.Status == "" {
		rec.Status = auth.StatusActive
	}
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		insert into credentials(subject_id, organization_id, email, password_hash, role, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $7)
		returning `+credentialColumns,
		rec.SubjectID, rec.OrganizationID, rec.Email, rec.PasswordHash, string(rec.Role), rec.Status, now)
	out, err := scanCredential(row)
	if err != nil {
		return auth.CredentialRecord{}, classify("credentials.create", err)
	}
	return out, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, subjectID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update credentials
		set password_hash = $2, updated_at = now()
		where subject_id = $1
	`, subjectID, passwordHash)
	if err != nil {
		return classify("credentials.update_password_hash", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("credentials.update_password_hash", err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
