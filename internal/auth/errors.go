package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: conflict")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrNamespace          = errors.New("auth: invalid namespace")
	ErrRevoked            = errors.New("auth: refresh token revoked")
	ErrTransientStorage   = errors.New("auth: transient storage error")
	ErrFatal              = errors.New("auth: internal error")
)

// Token failure sentinels. A *TokenError matches exactly one of them with errors.Is.
var (
	ErrTokenExpired          = errors.New("auth: token expired")
	ErrTokenInvalidSignature = errors.New("auth: token signature invalid")
	ErrTokenMalformed        = errors.New("auth: token malformed")
	ErrWrongTokenType        = errors.New("auth: wrong token type")
)

// TokenErrorKind classifies token verification failures.
type TokenErrorKind int

const (
	TokenMalformed TokenErrorKind = iota
	TokenInvalidSignature
	TokenExpired
	TokenWrongType
)

func (k TokenErrorKind) String() string {
	switch k {
	case TokenExpired:
		return "token_expired"
	case TokenInvalidSignature:
		return "invalid_signature"
	case TokenWrongType:
		return "wrong_token_type"
	default:
		return "malformed"
	}
}

func (k TokenErrorKind) sentinel() error {
	switch k {
	case TokenExpired:
		return ErrTokenExpired
	case TokenInvalidSignature:
		return ErrTokenInvalidSignature
	case TokenWrongType:
		return ErrWrongTokenType
	default:
		return ErrTokenMalformed
	}
}

// TokenError is returned by TokenVerifier. Err keeps the underlying parser
// error for logs; it is never shown to clients.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func newTokenError(kind TokenErrorKind, err error) *TokenError {
	return &TokenError{Kind: kind, Err: err}
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return e.Kind.sentinel().Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind.sentinel(), e.Err)
}

func (e *TokenError) Is(target error) bool { return target == e.Kind.sentinel() }

func (e *TokenError) Unwrap() error { return e.Err }

// Violation is a single field-level validation failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violation found at the boundary.
type ValidationError struct {
	Violations []Violation
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "auth: validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// AuthorizationError reports a denied (role, operation) pair.
type AuthorizationError struct {
	Role      Role
	Operation Operation
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("auth: role %q may not perform %q", e.Role, e.Operation)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

// NamespaceError reports an organization identifier that cannot be mapped.
type NamespaceError struct {
	OrganizationID string
	Reason         string
}

func (e *NamespaceError) Error() string {
	return "auth: invalid namespace: " + e.Reason
}

func (e *NamespaceError) Is(target error) bool { return target == ErrNamespace }

// TransientError wraps a retryable collaborator fault.
type TransientError struct {
	Op  string
	Err error
}

// Transient marks err as a retryable storage fault raised by op.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("auth: transient storage error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Is(target error) bool { return target == ErrTransientStorage }

func (e *TransientError) Unwrap() error { return e.Err }

// IsRetryable reports whether err may be retried on an idempotent read.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStorage)
}
