package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"rollcall.app/internal/audit"
	"rollcall.app/internal/auth"
)

const (
	codeValidation         = "VALIDATION_ERROR"
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeUnauthorized       = "UNAUTHORIZED"
	codeForbidden          = "FORBIDDEN"
	codeNotFound           = "NOT_FOUND"
	codeConflict           = "CONFLICT"
	codeDatabase           = "DATABASE_ERROR"
	codeInternal           = "INTERNAL_ERROR"
	codeRateLimited        = "RATE_LIMITED"
	codeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	codeUnavailable        = "SERVICE_UNAVAILABLE"

	maxBodyBytes = 1 << 20
)

type envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondOK(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	writeJSON(w, status, envelope{
		Error:     &errorBody{Code: code, Message: msg, Details: details},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// respondServiceError maps a typed auth/store error onto the envelope. Only
// fixed messages reach the client; the underlying error is logged.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		validation *auth.ValidationError
		tokenErr   *auth.TokenError
		denied     *auth.AuthorizationError
		nsErr      *auth.NamespaceError
	)
	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, codeValidation, "request validation failed",
			map[string]any{"violations": validation.Violations})
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password", nil)
	case errors.As(err, &tokenErr):
		respondError(w, http.StatusUnauthorized, codeUnauthorized, "invalid or expired token",
			map[string]any{"reason": tokenErr.Kind.String()})
	case errors.Is(err, auth.ErrRevoked):
		respondError(w, http.StatusUnauthorized, codeUnauthorized, "session is no longer valid", nil)
	case errors.As(err, &denied):
		respondError(w, http.StatusForbidden, codeForbidden, "insufficient permissions",
			map[string]any{"operation": denied.Operation.String()})
	case errors.As(err, &nsErr):
		respondError(w, http.StatusBadRequest, codeValidation, "organization identifier is not usable",
			map[string]any{"violations": []auth.Violation{{Field: "organizationId", Message: nsErr.Reason}}})
	case errors.Is(err, auth.ErrNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, "resource not found", nil)
	case errors.Is(err, auth.ErrConflict):
		respondError(w, http.StatusConflict, codeConflict, "resource already exists", nil)
	case errors.Is(err, auth.ErrTransientStorage):
		logger.ErrorContext(r.Context(), "storage unavailable", "request_id", audit.RequestIDFromContext(r.Context()), "error", err)
		respondError(w, http.StatusInternalServerError, codeDatabase, "storage temporarily unavailable", nil)
	default:
		logger.ErrorContext(r.Context(), "request failed", "request_id", audit.RequestIDFromContext(r.Context()), "error", err)
		respondError(w, http.StatusInternalServerError, codeInternal, "internal error", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func bodyError(err error) error {
	return auth.NewValidationError(auth.Violation{Field: "body", Message: err.Error()})
}

func respondBadBody(w http.ResponseWriter, err error) {
	respondError(w, http.StatusBadRequest, codeValidation, "request validation failed",
		map[string]any{"violations": []auth.Violation{{Field: "body", Message: err.Error()}}})
}
