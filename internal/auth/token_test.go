package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = IdentityClaims{
	SubjectID:      "user-42",
	Email:          "ada@example.com",
	OrganizationID: "acme",
	Role:           RoleManager,
}

func newTokenPair(t *testing.T, clock *testClock) (*TokenIssuer, *TokenVerifier) {
	t.Helper()
	cfg := testConfig()
	issuer, err := NewTokenIssuer(cfg, WithClock(clock.Now))
	require.NoError(t, err)
	verifier, err := NewTokenVerifier(cfg, WithClock(clock.Now))
	require.NoError(t, err)
	return issuer, verifier
}

func tokenKind(t *testing.T, err error) TokenErrorKind {
	t.Helper()
	var terr *TokenError
	require.ErrorAs(t, err, &terr)
	return terr.Kind
}

func TestIssueAndVerifyWithinTTL(t *testing.T) {
	clock := newTestClock()
	issuer, verifier := newTokenPair(t, clock)

	pair, err := issuer.Issue(testIdentity)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(15*time.Minute), pair.AccessExpiresAt)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), pair.RefreshExpiresAt)

	clock.Advance(15*time.Minute - time.Second)
	got, err := verifier.Verify(pair.AccessToken, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, got)
}

func TestVerifyAfterTTLIsExpired(t *testing.T) {
	clock := newTestClock()
	issuer, verifier := newTokenPair(t, clock)
	pair, err := issuer.Issue(testIdentity)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	_, err = verifier.Verify(pair.AccessToken, TokenAccess)
	require.ErrorIs(t, err, ErrTokenExpired)

	clock.Advance(time.Second)
	_, err = verifier.Verify(pair.AccessToken, TokenAccess)
	assert.Equal(t, TokenExpired, tokenKind(t, err))
}

func TestVerifyWrongTokenType(t *testing.T) {
	clock := newTestClock()
	issuer, verifier := newTokenPair(t, clock)
	pair, err := issuer.Issue(testIdentity)
	require.NoError(t, err)

	_, err = verifier.Verify(pair.RefreshToken, TokenAccess)
	require.ErrorIs(t, err, ErrWrongTokenType)

	_, err = verifier.VerifyRefresh(pair.AccessToken)
	require.ErrorIs(t, err, ErrWrongTokenType)

	// Still the wrong type once it has also expired.
	clock.Advance(8 * 24 * time.Hour)
	_, err = verifier.Verify(pair.RefreshToken, TokenAccess)
	require.ErrorIs(t, err, ErrWrongTokenType)
}

func TestVerifyInvalidSignature(t *testing.T) {
	clock := newTestClock()
	issuer, verifier := newTokenPair(t, clock)
	pair, err := issuer.Issue(testIdentity)
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	_, err = verifier.Verify(tampered, TokenAccess)
	require.ErrorIs(t, err, ErrTokenInvalidSignature)

	otherCfg := testConfig()
	otherCfg.AccessSecret = []byte(strings.Repeat("z", 32))
	forger, err := NewTokenIssuer(otherCfg, WithClock(clock.Now))
	require.NoError(t, err)
	forged, err := forger.Issue(IdentityClaims{SubjectID: "user-42", OrganizationID: "acme", Role: RoleAdmin})
	require.NoError(t, err)
	_, err = verifier.Verify(forged.AccessToken, TokenAccess)
	require.ErrorIs(t, err, ErrTokenInvalidSignature)

	otherIssuer := testConfig()
	otherIssuer.Issuer = "someone-else"
	foreign, err := NewTokenIssuer(otherIssuer, WithClock(clock.Now))
	require.NoError(t, err)
	foreignPair, err := foreign.Issue(testIdentity)
	require.NoError(t, err)
	_, err = verifier.Verify(foreignPair.AccessToken, TokenAccess)
	require.ErrorIs(t, err, ErrTokenInvalidSignature)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	clock := newTestClock()
	_, verifier := newTokenPair(t, clock)

	claims := jwtClaims{
		Org:       "acme",
		Role:      RoleAdmin,
		TokenType: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "rollcall",
			Subject:   "user-42",
			ID:        "jti",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = verifier.Verify(none, TokenAccess)
	require.ErrorIs(t, err, ErrTokenInvalidSignature)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(strings.Repeat("a", 32)))
	require.NoError(t, err)
	_, err = verifier.Verify(hs512, TokenAccess)
	require.ErrorIs(t, err, ErrTokenInvalidSignature)
}

func TestVerifyMalformed(t *testing.T) {
	clock := newTestClock()
	_, verifier := newTokenPair(t, clock)

	for _, raw := range []string{"", "   ", "abc", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.e30.", strings.Repeat("x", 4096)} {
		_, err := verifier.Verify(raw, TokenAccess)
		require.ErrorIs(t, err, ErrTokenMalformed, "raw=%q", raw)
	}

	unknownType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Org:       "acme",
		TokenType: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "rollcall",
			Subject:   "user-42",
			ID:        "jti",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(strings.Repeat("a", 32)))
	require.NoError(t, err)
	_, err = verifier.Verify(unknownType, TokenAccess)
	require.ErrorIs(t, err, ErrTokenMalformed)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Org:       "acme",
		Role:      RoleAdmin,
		TokenType: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "rollcall",
			Subject:  "user-42",
			ID:       "jti",
			IssuedAt: jwt.NewNumericDate(clock.Now()),
		},
	}).SignedString([]byte(strings.Repeat("a", 32)))
	require.NoError(t, err)
	_, err = verifier.Verify(noExp, TokenAccess)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestRefreshTokenCarriesNoRole(t *testing.T) {
	clock := newTestClock()
	issuer, verifier := newTokenPair(t, clock)
	pair, err := issuer.Issue(testIdentity)
	require.NoError(t, err)

	claims := &jwtClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(pair.RefreshToken, claims)
	require.NoError(t, err)
	assert.Empty(t, claims.Role)
	assert.Empty(t, claims.Email)
	assert.Equal(t, TokenRefresh, claims.TokenType)

	rc, err := verifier.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", rc.SubjectID)
	assert.Equal(t, "acme", rc.OrganizationID)
	assert.NotEmpty(t, rc.FamilyID)
	assert.NotEmpty(t, rc.TokenID)
}

func TestIssueValidatesClaims(t *testing.T) {
	issuer, _ := newTokenPair(t, newTestClock())
	_, err := issuer.Issue(IdentityClaims{SubjectID: "u", OrganizationID: "acme", Role: "owner"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = issuer.Issue(IdentityClaims{Role: RoleAdmin})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewTokenIssuerRejectsSharedSecret(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	_, err := NewTokenIssuer(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.AccessSecret = []byte("short")
	_, err = NewTokenVerifier(cfg)
	require.Error(t, err)
}
