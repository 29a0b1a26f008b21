package pg

import (
	"context"
	"time"

	"rollcall.app/internal/auth"
)

var _ auth.RevocationStore = (*Store)(nil)

// InsertIfAbsent relies on the primary key: exactly one concurrent insert
// for a token id affects a row.
func (s *Store) InsertIfAbsent(ctx context.Context, rec auth.RevocationRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		insert into revocations(token_id, family_id, reason, revoked_at, expires_at)
		values ($1, $2, $3, $4, $5)
		on conflict (token_id) do nothing
	`, rec.TokenID, rec.FamilyID, rec.Reason, rec.RevokedAt.UTC(), rec.ExpiresAt.UTC())
	if err != nil {
		return false, classify("revocations.insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("revocations.insert", err)
	}
	return n == 1, nil
}

func (s *Store) Exists(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from revocations where token_id = $1)
	`, tokenID).Scan(&exists)
	if err != nil {
		return false, classify("revocations.exists", err)
	}
	return exists, nil
}

// PurgeExpired deletes records whose tokens can no longer verify.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from revocations where expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, classify("revocations.purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("revocations.purge", err)
	}
	return n, nil
}
