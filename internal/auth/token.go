package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rollcall.app/internal/ids"
)

var errUnknownTokenType = errors.New("unknown token_type")

// jwtClaims is the wire form of both token types. Refresh tokens leave
// Email and Role empty; access tokens leave FamilyID empty.
type jwtClaims struct {
	Email     string    `json:"email,omitempty"`
	Org       string    `json:"org"`
	Role      Role      `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`
	FamilyID  string    `json:"fid,omitempty"`
	jwt.RegisteredClaims
}

type tokenKeys struct {
	issuer        string
	accessSecret  []byte
	refreshSecret []byte
}

func newTokenKeys(cfg Config) (tokenKeys, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return tokenKeys{}, errors.New("auth: token issuer is required")
	}
	if len(cfg.AccessSecret) < minSecretLength || len(cfg.RefreshSecret) < minSecretLength {
		return tokenKeys{}, fmt.Errorf("auth: token secrets must be at least %d bytes", minSecretLength)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return tokenKeys{}, errors.New("auth: access and refresh secrets must differ")
	}
	return tokenKeys{
		issuer:        cfg.Issuer,
		accessSecret:  append([]byte(nil), cfg.AccessSecret...),
		refreshSecret: append([]byte(nil), cfg.RefreshSecret...),
	}, nil
}

func (k tokenKeys) secret(t TokenType) ([]byte, error) {
	switch t {
	case TokenAccess:
		return k.accessSecret, nil
	case TokenRefresh:
		return k.refreshSecret, nil
	default:
		return nil, errUnknownTokenType
	}
}

// TokenIssuer signs access/refresh pairs.
type TokenIssuer struct {
	keys       tokenKeys
	accessTTL  time.Duration
	refreshTTL time.Duration
	opts       options
}

// NewTokenIssuer builds an issuer from the token settings of cfg.
func NewTokenIssuer(cfg Config, opts ...Option) (*TokenIssuer, error) {
	keys, err := newTokenKeys(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("auth: access ttl must be positive and shorter than refresh ttl")
	}
	return &TokenIssuer{
		keys:       keys,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		opts:       buildOptions(opts),
	}, nil
}

// Issue starts a new session family and returns its first pair.
func (i *TokenIssuer) Issue(claims IdentityClaims) (TokenPair, error) {
	return i.IssueInFamily(claims, ids.New())
}

// IssueInFamily returns a pair whose refresh token belongs to familyID.
func (i *TokenIssuer) IssueInFamily(claims IdentityClaims, familyID string) (TokenPair, error) {
	var violations []Violation
	if claims.SubjectID == "" {
		violations = append(violations, Violation{Field: "subjectId", Message: "cannot be blank"})
	}
	if claims.OrganizationID == "" {
		violations = append(violations, Violation{Field: "organizationId", Message: "cannot be blank"})
	}
	if !claims.Role.Valid() {
		violations = append(violations, Violation{Field: "role", Message: "must be a valid value"})
	}
	if familyID == "" {
		violations = append(violations, Violation{Field: "familyId", Message: "cannot be blank"})
	}
	if len(violations) > 0 {
		return TokenPair{}, NewValidationError(violations...)
	}

	now := i.opts.now().UTC().Truncate(time.Second)
	accessExp := now.Add(i.accessTTL)
	refreshExp := now.Add(i.refreshTTL)

	access, err := i.sign(TokenAccess, jwtClaims{
		Email:            claims.Email,
		Org:              claims.OrganizationID,
		Role:             claims.Role,
		TokenType:        TokenAccess,
		RegisteredClaims: i.registered(claims.SubjectID, now, accessExp),
	})
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.sign(TokenRefresh, jwtClaims{
		Org:              claims.OrganizationID,
		TokenType:        TokenRefresh,
		FamilyID:         familyID,
		RegisteredClaims: i.registered(claims.SubjectID, now, refreshExp),
	})
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *TokenIssuer) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    i.keys.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        ids.New(),
	}
}

func (i *TokenIssuer) sign(t TokenType, claims jwtClaims) (string, error) {
	secret, err := i.keys.secret(t)
	if err != nil {
		return "", err
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", t, err)
	}
	return signed, nil
}

// TokenVerifier checks tokens signed by a TokenIssuer with the same Config.
// It performs no I/O.
type TokenVerifier struct {
	keys tokenKeys
	opts options
}

// NewTokenVerifier builds a verifier from the token settings of cfg.
func NewTokenVerifier(cfg Config, opts ...Option) (*TokenVerifier, error) {
	keys, err := newTokenKeys(cfg)
	if err != nil {
		return nil, err
	}
	return &TokenVerifier{keys: keys, opts: buildOptions(opts)}, nil
}

// Verify validates raw as a token of the expected type and returns its identity.
func (v *TokenVerifier) Verify(raw string, expected TokenType) (IdentityClaims, error) {
	c, err := v.verify(raw, expected)
	if err != nil {
		return IdentityClaims{}, err
	}
	if expected == TokenAccess && !c.Role.Valid() {
		return IdentityClaims{}, v.fail(newTokenError(TokenMalformed, errors.New("unknown role")))
	}
	v.opts.metrics.ObserveVerification("ok")
	return IdentityClaims{
		SubjectID:      c.Subject,
		Email:          c.Email,
		OrganizationID: c.Org,
		Role:           c.Role,
	}, nil
}

// VerifyRefresh validates a refresh token and exposes its rotation fields.
// The returned claims never carry a role.
func (v *TokenVerifier) VerifyRefresh(raw string) (RefreshClaims, error) {
	c, err := v.verify(raw, TokenRefresh)
	if err != nil {
		return RefreshClaims{}, err
	}
	if c.FamilyID == "" {
		return RefreshClaims{}, v.fail(newTokenError(TokenMalformed, errors.New("missing fid")))
	}
	v.opts.metrics.ObserveVerification("ok")
	return RefreshClaims{
		TokenID:        c.ID,
		FamilyID:       c.FamilyID,
		SubjectID:      c.Subject,
		OrganizationID: c.Org,
		IssuedAt:       c.IssuedAt.Time,
		ExpiresAt:      c.ExpiresAt.Time,
	}, nil
}

func (v *TokenVerifier) verify(raw string, expected TokenType) (*jwtClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, v.fail(newTokenError(TokenMalformed, errors.New("empty token")))
	}
	claims := &jwtClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.keys.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.opts.now),
	)
	if err != nil {
		return nil, v.fail(classify(err, claims, expected))
	}
	if claims.TokenType != expected {
		return nil, v.fail(newTokenError(TokenWrongType, fmt.Errorf("got %s token", claims.TokenType)))
	}
	if claims.IssuedAt == nil || claims.ID == "" || claims.Subject == "" || claims.Org == "" {
		return nil, v.fail(newTokenError(TokenMalformed, errors.New("missing required claims")))
	}
	return claims, nil
}

func (v *TokenVerifier) keyFunc(t *jwt.Token) (any, error) {
	c, ok := t.Claims.(*jwtClaims)
	if !ok {
		return nil, errUnknownTokenType
	}
	return v.keys.secret(c.TokenType)
}

func (v *TokenVerifier) fail(err *TokenError) error {
	v.opts.metrics.ObserveVerification(err.Kind.String())
	return err
}

// classify maps parser errors onto token error kinds. Claims are only
// validated after the signature checks out, so an expired token of the other
// type was still signed by us and is reported as the wrong type.
func classify(err error, claims *jwtClaims, expected TokenType) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newTokenError(TokenInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newTokenError(TokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return newTokenError(TokenInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		if claims.TokenType != expected {
			return newTokenError(TokenWrongType, err)
		}
		return newTokenError(TokenExpired, err)
	default:
		return newTokenError(TokenMalformed, err)
	}
}
