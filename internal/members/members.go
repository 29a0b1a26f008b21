// Package members is the tenant data surface guarded by the auth core. Every
// repository call is scoped by a namespace resolved from the caller's identity.
package members

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"rollcall.app/internal/auth"
)

// Member is a person tracked by an organization.
type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMember is the create payload.
type NewMember struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Normalize trims whitespace and lower-cases the email.
func (n NewMember) Normalize() NewMember {
	n.Name = strings.TrimSpace(n.Name)
	n.Email = strings.ToLower(strings.TrimSpace(n.Email))
	n.Phone = strings.TrimSpace(n.Phone)
	return n
}

// Validate checks the create payload and returns an *auth.ValidationError.
func (n NewMember) Validate() error {
	return auth.FromValidation(validation.ValidateStruct(&n,
		validation.Field(&n.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&n.Email, validation.Length(0, 254), is.Email),
		validation.Field(&n.Phone, validation.Length(0, 32)),
	))
}

// ListOptions page through members ordered by id.
type ListOptions struct {
	Limit int
	After string
}

// Repository stores members per namespace. Implementations must never read
// or write outside the namespace they are given.
type Repository interface {
	Create(ctx context.Context, namespace string, m Member) (Member, error)
	List(ctx context.Context, namespace string, opts ListOptions) ([]Member, error)
}
