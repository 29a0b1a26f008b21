package auth

import (
	"context"
	"errors"
	"fmt"
)

// Dependencies are the external collaborators of a Service.
type Dependencies struct {
	Credentials CredentialRepository
	Identities  IdentitySource
	Revocations RevocationStore
	// Matrix overrides DefaultMatrix when set.
	Matrix *PermissionMatrix
	// NamespaceCacheSize enables a CachedResolver when positive.
	NamespaceCacheSize int64
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	Identity IdentityClaims
	Tokens   TokenPair
}

// Service wires the auth components from an immutable Config.
type Service struct {
	cfg         Config
	credentials *CredentialStore
	issuer      *TokenIssuer
	verifier    *TokenVerifier
	resolver    Resolver
	gate        *Gate
	refresh     *RefreshCoordinator
	opts        options
	close       func()
}

// NewService validates cfg and builds every component.
func NewService(cfg Config, deps Dependencies, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Credentials == nil || deps.Identities == nil || deps.Revocations == nil {
		return nil, errors.New("auth: credentials, identities and revocations are required")
	}
	credentials, err := NewCredentialStore(deps.Credentials, cfg, opts...)
	if err != nil {
		return nil, err
	}
	issuer, err := NewTokenIssuer(cfg, opts...)
	if err != nil {
		return nil, err
	}
	verifier, err := NewTokenVerifier(cfg, opts...)
	if err != nil {
		return nil, err
	}
	refresh, err := NewRefreshCoordinator(verifier, issuer, deps.Revocations, deps.Identities, cfg, opts...)
	if err != nil {
		return nil, err
	}
	base, err := NewNamespaceResolver(cfg.NamespacePrefix, cfg.NamespaceMaxLen)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:         cfg,
		credentials: credentials,
		issuer:      issuer,
		verifier:    verifier,
		resolver:    base,
		refresh:     refresh,
		opts:        buildOptions(opts),
		close:       func() {},
	}
	if deps.NamespaceCacheSize > 0 {
		cached, err := NewCachedResolver(base, deps.NamespaceCacheSize)
		if err != nil {
			return nil, err
		}
		s.resolver = cached
		s.close = cached.Close
	}
	matrix := DefaultMatrix()
	if deps.Matrix != nil {
		matrix = *deps.Matrix
	}
	s.gate = NewGate(matrix, opts...)
	return s, nil
}

// Login authenticates email/password and issues a pair in a new session family.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.opts.metrics.ObserveLogin("invalid_credentials")
			s.opts.audit.Record(ctx, "login_failed", map[string]any{"email": normalizeEmail(email)})
		} else {
			s.opts.metrics.ObserveLogin("error")
		}
		return LoginResult{}, err
	}
	if _, err := s.resolver.Resolve(rec.OrganizationID); err != nil {
		s.opts.metrics.ObserveLogin("error")
		return LoginResult{}, err
	}
	identity := rec.Identity()
	pair, err := s.issuer.Issue(identity)
	if err != nil {
		s.opts.metrics.ObserveLogin("error")
		return LoginResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	s.opts.metrics.ObserveLogin("ok")
	s.opts.audit.Record(ctx, "login_succeeded", map[string]any{
		"subject_id":      identity.SubjectID,
		"organization_id": identity.OrganizationID,
		"role":            identity.Role.String(),
	})
	return LoginResult{Identity: identity, Tokens: pair}, nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pair, identity, err := s.refresh.Refresh(ctx, refreshToken)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Identity: identity, Tokens: pair}, nil
}

// Logout revokes the session family of refreshToken.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.refresh.Revoke(ctx, refreshToken)
}

// RefreshState reports the lifecycle state of refreshToken.
func (s *Service) RefreshState(ctx context.Context, refreshToken string) (RefreshState, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.refresh.State(ctx, refreshToken)
}

// Authenticate verifies an access token and resolves its tenant namespace.
// It performs no I/O.
func (s *Service) Authenticate(accessToken string) (IdentityClaims, string, error) {
	identity, err := s.verifier.Verify(accessToken, TokenAccess)
	if err != nil {
		return IdentityClaims{}, "", err
	}
	ns, err := s.resolver.Resolve(identity.OrganizationID)
	if err != nil {
		return IdentityClaims{}, "", err
	}
	return identity, ns, nil
}

// Authorize checks identity against the permission matrix.
func (s *Service) Authorize(identity IdentityClaims, op Operation) error {
	return s.gate.Require(identity, op)
}

// Register creates a credential through the configured repository.
func (s *Service) Register(ctx context.Context, in NewCredential) (CredentialRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.credentials.Register(ctx, in)
}

// Gate exposes the authorization gate for transport interceptors.
func (s *Service) Gate() *Gate { return s.gate }

// Config returns the configuration the service was built with.
func (s *Service) Config() Config { return s.cfg }

// Close releases background resources.
func (s *Service) Close() { s.close() }

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}
