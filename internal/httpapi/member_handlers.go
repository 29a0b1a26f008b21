package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"rollcall.app/internal/auth"
	"rollcall.app/internal/members"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type memberPage struct {
	Items     []members.Member `json:"items"`
	NextAfter string           `json:"nextAfter,omitempty"`
}

func (a *API) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	namespace, ok := auth.NamespaceFromContext(r.Context())
	if !ok {
		respondMissingToken(w)
		return
	}

	var req members.NewMember
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		respondServiceError(w, r, a.logger, err)
		return
	}

	created, err := a.members.Create(r.Context(), namespace, members.Member{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		CreatedBy: identity.SubjectID,
	})
	if err != nil {
		respondServiceError(w, r, a.logger, err)
		return
	}
	respondOK(w, http.StatusCreated, created)
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request) {
	namespace, ok := auth.NamespaceFromContext(r.Context())
	if !ok {
		respondMissingToken(w)
		return
	}

	limit := defaultPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			respondServiceError(w, r, a.logger, auth.NewValidationError(auth.Violation{
				Field:   "limit",
				Message: "must be an integer between 1 and " + strconv.Itoa(maxPageSize),
			}))
			return
		}
		limit = n
	}

	items, err := a.members.List(r.Context(), namespace, members.ListOptions{
		Limit: limit,
		After: strings.TrimSpace(r.URL.Query().Get("after")),
	})
	if err != nil {
		respondServiceError(w, r, a.logger, err)
		return
	}
	page := memberPage{Items: items}
	if len(items) == limit {
		page.NextAfter = items[len(items)-1].ID
	}
	respondOK(w, http.StatusOK, page)
}
