package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// RefreshCoordinator rotates refresh tokens. Each refresh token moves through
// Active -> Rotated once; presenting a rotated token again revokes its family.
type RefreshCoordinator struct {
	verifier    *TokenVerifier
	issuer      *TokenIssuer
	revocations RevocationStore
	identities  IdentitySource
	retry       retryPolicy
	lookups     singleflight.Group
	timeout     time.Duration
	opts        options
}

// NewRefreshCoordinator wires the rotation dependencies.
func NewRefreshCoordinator(verifier *TokenVerifier, issuer *TokenIssuer, revocations RevocationStore, identities IdentitySource, cfg Config, opts ...Option) (*RefreshCoordinator, error) {
	switch {
	case verifier == nil, issuer == nil:
		return nil, errors.New("auth: token verifier and issuer are required")
	case revocations == nil:
		return nil, errors.New("auth: revocation store is required")
	case identities == nil:
		return nil, errors.New("auth: identity source is required")
	}
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &RefreshCoordinator{
		timeout:     timeout,
		verifier:    verifier,
		issuer:      issuer,
		revocations: revocations,
		identities:  identities,
		retry:       newRetryPolicy(cfg),
		opts:        buildOptions(opts),
	}, nil
}

// Refresh consumes raw and returns a new pair in the same family. The role in
// the new access token is read from the identity source, never from raw.
func (c *RefreshCoordinator) Refresh(ctx context.Context, raw string) (TokenPair, IdentityClaims, error) {
	rc, err := c.verifier.VerifyRefresh(raw)
	if err != nil {
		c.opts.metrics.ObserveRefresh("invalid")
		return TokenPair{}, IdentityClaims{}, err
	}

	revoked, err := c.familyRevoked(ctx, rc.FamilyID)
	if err != nil {
		c.opts.metrics.ObserveRefresh("error")
		return TokenPair{}, IdentityClaims{}, err
	}
	if revoked {
		c.opts.metrics.ObserveRefresh("revoked")
		return TokenPair{}, IdentityClaims{}, ErrRevoked
	}

	rec, err := c.identity(ctx, rc.SubjectID, rc.OrganizationID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.opts.metrics.ObserveRefresh("revoked")
		return TokenPair{}, IdentityClaims{}, ErrRevoked
	case err != nil:
		c.opts.metrics.ObserveRefresh("error")
		return TokenPair{}, IdentityClaims{}, err
	case !rec.Active() || rec.OrganizationID != rc.OrganizationID:
		c.opts.metrics.ObserveRefresh("revoked")
		return TokenPair{}, IdentityClaims{}, ErrRevoked
	}

	created, err := c.revocations.InsertIfAbsent(ctx, RevocationRecord{
		TokenID:   rc.TokenID,
		FamilyID:  rc.FamilyID,
		Reason:    ReasonRotated,
		RevokedAt: c.opts.now().UTC(),
		ExpiresAt: rc.ExpiresAt,
	})
	if err != nil {
		c.opts.metrics.ObserveRefresh("error")
		return TokenPair{}, IdentityClaims{}, err
	}
	if !created {
		c.opts.metrics.ObserveRefresh("reuse")
		if err := c.revokeFamily(ctx, rc.FamilyID); err != nil {
			c.opts.logger.ErrorContext(ctx, "revoke family after reuse failed", "family_id", rc.FamilyID, "error", err)
		}
		c.opts.audit.Record(ctx, "refresh_reuse_detected", map[string]any{
			"subject_id":      rc.SubjectID,
			"organization_id": rc.OrganizationID,
			"family_id":       rc.FamilyID,
			"token_id":        rc.TokenID,
		})
		return TokenPair{}, IdentityClaims{}, ErrRevoked
	}

	identity := rec.Identity()
	pair, err := c.issuer.IssueInFamily(identity, rc.FamilyID)
	if err != nil {
		c.opts.metrics.ObserveRefresh("error")
		return TokenPair{}, IdentityClaims{}, err
	}
	c.opts.metrics.ObserveRefresh("ok")
	c.opts.audit.Record(ctx, "refresh_rotated", map[string]any{
		"subject_id":      identity.SubjectID,
		"organization_id": identity.OrganizationID,
		"family_id":       rc.FamilyID,
	})
	return pair, identity, nil
}

// Revoke ends the session raw belongs to. Revoking twice is not an error.
func (c *RefreshCoordinator) Revoke(ctx context.Context, raw string) error {
	rc, err := c.verifier.VerifyRefresh(raw)
	if err != nil {
		return err
	}
	if err := c.revokeFamily(ctx, rc.FamilyID); err != nil {
		return err
	}
	c.opts.audit.Record(ctx, "logout", map[string]any{
		"subject_id":      rc.SubjectID,
		"organization_id": rc.OrganizationID,
		"family_id":       rc.FamilyID,
	})
	return nil
}

// State reports where raw sits in the rotation lifecycle. Tokens that fail
// verification for any reason other than expiry return the verification error.
func (c *RefreshCoordinator) State(ctx context.Context, raw string) (RefreshState, error) {
	rc, err := c.verifier.VerifyRefresh(raw)
	if errors.Is(err, ErrTokenExpired) {
		return RefreshExpired, nil
	}
	if err != nil {
		return "", err
	}
	revoked, err := c.familyRevoked(ctx, rc.FamilyID)
	if err != nil {
		return "", err
	}
	if revoked {
		return RefreshRevoked, nil
	}
	rotated, err := readWithRetry(ctx, c.retry, func(ctx context.Context) (bool, error) {
		return c.revocations.Exists(ctx, rc.TokenID)
	})
	if err != nil {
		return "", err
	}
	if rotated {
		return RefreshRotated, nil
	}
	return RefreshActive, nil
}

func (c *RefreshCoordinator) familyRevoked(ctx context.Context, familyID string) (bool, error) {
	return readWithRetry(ctx, c.retry, func(ctx context.Context) (bool, error) {
		return c.revocations.Exists(ctx, FamilyKey(familyID))
	})
}

// revokeFamily outlives every token the family can still hold: each rotation
// issues a refresh token valid for at most one refresh TTL from now.
func (c *RefreshCoordinator) revokeFamily(ctx context.Context, familyID string) error {
	now := c.opts.now().UTC()
	_, err := c.revocations.InsertIfAbsent(ctx, RevocationRecord{
		TokenID:   FamilyKey(familyID),
		FamilyID:  familyID,
		Reason:    ReasonRevoked,
		RevokedAt: now,
		ExpiresAt: now.Add(c.issuer.refreshTTL),
	})
	return err
}

// identity coalesces concurrent lookups of one subject. The shared lookup is
// detached from any single caller; each caller stops waiting on its own ctx.
func (c *RefreshCoordinator) identity(ctx context.Context, subjectID, organizationID string) (CredentialRecord, error) {
	ch := c.lookups.DoChan(subjectID+"\x00"+organizationID, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return readWithRetry(lookupCtx, c.retry, func(ctx context.Context) (CredentialRecord, error) {
			return c.identities.Identity(ctx, subjectID, organizationID)
		})
	})
	select {
	case <-ctx.Done():
		return CredentialRecord{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return CredentialRecord{}, res.Err
		}
		return res.Val.(CredentialRecord), nil
	}
}
