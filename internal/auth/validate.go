package auth

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
)

// FromValidation converts ozzo-validation errors into a *ValidationError with
// violations sorted by field. Internal validator faults are returned as-is.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}
	var fields validation.Errors
	if !errors.As(err, &fields) {
		return NewValidationError(Violation{Message: err.Error()})
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	violations := make([]Violation, 0, len(keys))
	for _, k := range keys {
		if fields[k] == nil {
			continue
		}
		violations = append(violations, Violation{Field: k, Message: fields[k].Error()})
	}
	if len(violations) == 0 {
		return nil
	}
	return NewValidationError(violations...)
}
