package pg

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"rollcall.app/internal/auth"
	"rollcall.app/internal/ids"
	"rollcall.app/internal/members"
)

var _ members.Repository = (*MemberStore)(nil)

const (
	codeUndefinedTable = "42P01"
	codeInvalidSchema  = "3F000"
	defaultMemberLimit = 50
	maxMemberLimit     = 500
)

var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// MemberStore keeps each tenant's members in its own schema, named by the
// tenant namespace.
type MemberStore struct {
	db      *sql.DB
	now     func() time.Time
	ensured sync.Map
}

// Members returns the member repository sharing the store's pool.
func (s *Store) Members() *MemberStore {
	return &MemberStore{db: s.db, now: time.Now}
}

func membersTable(namespace string) (string, error) {
	if !namespacePattern.MatchString(namespace) {
		return "", &auth.NamespaceError{Reason: "not a resolved namespace"}
	}
	return pgx.Identifier{namespace, "members"}.Sanitize(), nil
}

// EnsureNamespace creates the tenant schema and its tables.
func (m *MemberStore) EnsureNamespace(ctx context.Context, namespace string) error {
	table, err := membersTable(namespace)
	if err != nil {
		return err
	}
	if _, ok := m.ensured.Load(namespace); ok {
		return nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("members.ensure_namespace", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `create schema if not exists `+pgx.Identifier{namespace}.Sanitize()); err != nil {
		return classify("members.ensure_namespace", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			id text primary key,
			name text not null,
			email text,
			phone text,
			created_by text not null,
			created_at timestamptz not null default now()
		)`, table)); err != nil {
		return classify("members.ensure_namespace", err)
	}
	if err := tx.Commit(); err != nil {
		return classify("members.ensure_namespace", err)
	}
	m.ensured.Store(namespace, struct{}{})
	return nil
}

func (m *MemberStore) Create(ctx context.Context, namespace string, in members.Member) (members.Member, error) {
	table, err := membersTable(namespace)
	if err != nil {
		return members.Member{}, err
	}
	if err := m.EnsureNamespace(ctx, namespace); err != nil {
		return members.Member{}, err
	}
	if in.ID == "" {
		in.ID = ids.New()
	}
	in.CreatedAt = m.now().UTC()
	_, err = m.db.ExecContext(ctx, fmt.Sprintf(`
		insert into %s(id, name, email, phone, created_by, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, table), in.ID, in.Name, nullIfEmpty(in.Email), nullIfEmpty(in.Phone), in.CreatedBy, in.CreatedAt)
	if err != nil {
		return members.Member{}, classify("members.create", err)
	}
	return in, nil
}

func (m *MemberStore) List(ctx context.Context, namespace string, opts members.ListOptions) ([]members.Member, error) {
	table, err := membersTable(namespace)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultMemberLimit
	}
	if limit > maxMemberLimit {
		limit = maxMemberLimit
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`
		select id, name, coalesce(email, ''), coalesce(phone, ''), created_by, created_at
		from %s
		where id > $1
		order by id
		limit $2
	`, table), opts.After, limit)
	if err != nil {
		// A tenant that never wrote has no schema yet.
		if pgErr, ok := maybePgError(err); ok && (pgErr.Code == codeUndefinedTable || pgErr.Code == codeInvalidSchema) {
			return []members.Member{}, nil
		}
		return nil, classify("members.list", err)
	}
	defer rows.Close()

	out := make([]members.Member, 0, limit)
	for rows.Next() {
		var mem members.Member
		if err := rows.Scan(&mem.ID, &mem.Name, &mem.Email, &mem.Phone, &mem.CreatedBy, &mem.CreatedAt); err != nil {
			return nil, classify("members.list", err)
		}
		out = append(out, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("members.list", err)
	}
	return out, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
