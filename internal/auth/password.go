package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"rollcall.app/internal/ids"
)

const (
	argon2Prefix = "$argon2id$"

	// Upper bounds for parameters read back from stored argon2id hashes.
	maxArgon2Memory      = 1 << 20
	maxArgon2Iterations  = 16
	maxArgon2Parallelism = 16
	maxArgon2KeyLength   = 128
)

// CredentialStore hashes and verifies passwords and authenticates subjects
// against the external CredentialRepository. Hashing runs on a bounded pool.
type CredentialStore struct {
	repo  CredentialRepository
	cfg   Config
	pool  *semaphore.Weighted
	retry retryPolicy
	opts  options
	// dummy is compared against when the email is unknown.
	dummy string
}

// NewCredentialStore validates the hashing parameters of cfg and builds a store.
func NewCredentialStore(repo CredentialRepository, cfg Config, opts ...Option) (*CredentialStore, error) {
	if repo == nil {
		return nil, errors.New("auth: credential repository is required")
	}
	switch cfg.PasswordAlgorithm {
	case AlgorithmBcrypt:
		if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("auth: bcrypt cost %d out of range", cfg.BcryptCost)
		}
	case AlgorithmArgon2id:
		if cfg.Argon2.Memory == 0 || cfg.Argon2.Iterations == 0 || cfg.Argon2.Parallelism == 0 {
			return nil, errors.New("auth: argon2 parameters must be positive")
		}
	default:
		return nil, fmt.Errorf("auth: unsupported password algorithm %q", cfg.PasswordAlgorithm)
	}
	workers := cfg.HashWorkers
	if workers <= 0 {
		workers = 1
	}
	s := &CredentialStore{
		repo:  repo,
		cfg:   cfg,
		pool:  semaphore.NewWeighted(int64(workers)),
		retry: newRetryPolicy(cfg),
		opts:  buildOptions(opts),
	}
	dummy, err := s.hash(ids.New())
	if err != nil {
		return nil, fmt.Errorf("auth: dummy hash: %w", err)
	}
	s.dummy = dummy
	return s, nil
}

// HashPassword produces a self-describing hash with the configured algorithm and cost.
func (s *CredentialStore) HashPassword(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", NewValidationError(Violation{Field: "password", Message: "cannot be blank"})
	}
	var (
		hash    string
		hashErr error
	)
	if err := s.run(ctx, func() { hash, hashErr = s.hash(plaintext) }); err != nil {
		return "", err
	}
	if errors.Is(hashErr, bcrypt.ErrPasswordTooLong) {
		return "", NewValidationError(Violation{Field: "password", Message: "must be at most 72 bytes"})
	}
	return hash, hashErr
}

// ComparePassword reports whether plaintext matches hash. It never returns an
// error: malformed hashes, empty input and cancelled contexts all yield false.
func (s *CredentialStore) ComparePassword(ctx context.Context, plaintext, hash string) bool {
	ok, err := s.compare(ctx, plaintext, hash)
	return err == nil && ok
}

// NeedsRehash reports whether hash was produced with parameters other than
// the configured ones.
func (s *CredentialStore) NeedsRehash(hash string) bool {
	switch s.cfg.PasswordAlgorithm {
	case AlgorithmArgon2id:
		p, _, _, err := decodeArgon2(hash)
		if err != nil {
			return true
		}
		want := s.cfg.Argon2
		return p.Memory != want.Memory || p.Iterations != want.Iterations || p.Parallelism != want.Parallelism
	default:
		cost, err := bcrypt.Cost([]byte(hash))
		return err != nil || cost != s.cfg.BcryptCost
	}
}

// Authenticate verifies email and password against the repository. Unknown
// emails, wrong passwords and disabled accounts are indistinguishable.
func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (CredentialRecord, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return CredentialRecord{}, ErrInvalidCredentials
	}
	rec, err := readWithRetry(ctx, s.retry, func(ctx context.Context) (CredentialRecord, error) {
		return s.repo.FindByEmail(ctx, email)
	})
	if errors.Is(err, ErrNotFound) {
		// Burn the same hashing work as a real comparison.
		_, _ = s.compare(ctx, password, s.dummy)
		return CredentialRecord{}, ErrInvalidCredentials
	}
	if err != nil {
		return CredentialRecord{}, err
	}
	ok, err := s.compare(ctx, password, rec.PasswordHash)
	if err != nil {
		return CredentialRecord{}, err
	}
	if !ok || !rec.Active() {
		return CredentialRecord{}, ErrInvalidCredentials
	}
	if s.NeedsRehash(rec.PasswordHash) {
		s.rehash(ctx, rec, password)
	}
	return rec, nil
}

// NewCredential is the input of Register.
type NewCredential struct {
	OrganizationID string `json:"organizationId"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           Role   `json:"role"`
}

// Validate checks the fields of a new credential.
func (n NewCredential) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.OrganizationID, validation.Required, validation.Length(1, 128)),
		validation.Field(&n.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&n.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&n.Role, validation.Required, validation.In(RoleAdmin, RoleManager, RoleMember)),
	)
}

// Register validates and hashes a new credential and stores it.
func (s *CredentialStore) Register(ctx context.Context, in NewCredential) (CredentialRecord, error) {
	in.Email = normalizeEmail(in.Email)
	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	if err := FromValidation(in.Validate()); err != nil {
		return CredentialRecord{}, err
	}
	hash, err := s.HashPassword(ctx, in.Password)
	if err != nil {
		return CredentialRecord{}, err
	}
	return s.repo.Create(ctx, CredentialRecord{
		SubjectID:      ids.New(),
		OrganizationID: in.OrganizationID,
		Email:          in.Email,
		PasswordHash:   hash,
		Role:           in.Role,
		Status:         StatusActive,
	})
}

func (s *CredentialStore) rehash(ctx context.Context, rec CredentialRecord, password string) {
	hash, err := s.HashPassword(ctx, password)
	if err == nil {
		err = s.repo.UpdatePasswordHash(ctx, rec.SubjectID, hash)
	}
	if err != nil {
		s.opts.logger.WarnContext(ctx, "password rehash failed", "subject_id", rec.SubjectID, "error", err)
	}
}

func (s *CredentialStore) compare(ctx context.Context, plaintext, hash string) (bool, error) {
	if plaintext == "" || hash == "" {
		return false, nil
	}
	var ok bool
	if err := s.run(ctx, func() { ok = verifyHash(plaintext, hash) }); err != nil {
		return false, err
	}
	return ok, nil
}

// run executes fn on the hashing pool, waiting for a free slot or ctx.
func (s *CredentialStore) run(ctx context.Context, fn func()) error {
	s.opts.metrics.HashPoolWaiting(1)
	err := s.pool.Acquire(ctx, 1)
	s.opts.metrics.HashPoolWaiting(-1)
	if err != nil {
		return err
	}
	defer s.pool.Release(1)
	start := time.Now()
	fn()
	s.opts.metrics.ObserveHash(time.Since(start))
	return nil
}

func (s *CredentialStore) hash(plaintext string) (string, error) {
	if s.cfg.PasswordAlgorithm == AlgorithmArgon2id {
		return hashArgon2(plaintext, s.cfg.Argon2)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cfg.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func verifyHash(plaintext, hash string) bool {
	switch {
	case strings.HasPrefix(hash, argon2Prefix):
		return verifyArgon2(plaintext, hash)
	case strings.HasPrefix(hash, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
	default:
		return false
	}
}

func hashArgon2(plaintext string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyArgon2(plaintext, hash string) bool {
	p, salt, key, err := decodeArgon2(hash)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(plaintext), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

func decodeArgon2(hash string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, errors.New("invalid argon2id hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errors.New("unsupported argon2 version")
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, errors.New("invalid argon2 parameters")
	}
	if p.Memory == 0 || p.Memory > maxArgon2Memory ||
		p.Iterations == 0 || p.Iterations > maxArgon2Iterations ||
		p.Parallelism == 0 || p.Parallelism > maxArgon2Parallelism {
		return p, nil, nil, errors.New("argon2 parameters out of range")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, errors.New("invalid argon2 salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxArgon2KeyLength {
		return p, nil, nil, errors.New("invalid argon2 key")
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
