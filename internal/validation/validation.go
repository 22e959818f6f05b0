// Package validation checks request payloads against the enumerated domains
// and length bounds before they reach the repository.
package validation

import (
	"fmt"
	"strings"

	"github.com/issueboard/issueboard/internal/types"
)

// FieldError is a single field-scoped validation failure.
type FieldError struct {
	Field   string
	Message string
}

// Errors collects field failures for one request. It satisfies error so
// handlers can surface the whole set in a 400 response.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return strings.Join(msgs, "; ")
}

// Validator accumulates field errors.
type Validator struct {
	errs Errors
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{}
}

// Add records a failure for a field.
func (v *Validator) Add(field, message string) {
	v.errs = append(v.errs, FieldError{Field: field, Message: message})
}

// Required fails when value is empty or whitespace.
func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "is required")
	}
}

// MaxLength fails when value exceeds max bytes.
func (v *Validator) MaxLength(field, value string, max int) {
	if len(value) > max {
		v.Add(field, fmt.Sprintf("must not exceed %d characters", max))
	}
}

// OneOf fails when value is not in the allowed set.
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// Valid reports whether no failures were recorded.
func (v *Validator) Valid() bool {
	return len(v.errs) == 0
}

// Err returns the accumulated failures, or nil when valid.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

// CreateIssue validates a creation payload: title non-empty and bounded,
// description bounded, status and priority from the enumerated sets.
func CreateIssue(req types.CreateIssueRequest) error {
	v := New()
	v.Required("title", req.Title)
	v.MaxLength("title", req.Title, types.MaxTitleLen)
	v.MaxLength("description", req.Description, types.MaxDescriptionLen)
	v.OneOf("status", req.Status, types.StatusValues())
	v.OneOf("priority", req.Priority, types.PriorityValues())
	return v.Err()
}

// UpdateIssue validates a partial update: the same bounds as creation, but
// only for fields actually present in the payload.
func UpdateIssue(req types.UpdateIssueRequest) error {
	v := New()
	if req.Title != nil {
		v.Required("title", *req.Title)
		v.MaxLength("title", *req.Title, types.MaxTitleLen)
	}
	if req.Description != nil {
		v.MaxLength("description", *req.Description, types.MaxDescriptionLen)
	}
	if req.Status != nil {
		v.OneOf("status", *req.Status, types.StatusValues())
	}
	if req.Priority != nil {
		v.OneOf("priority", *req.Priority, types.PriorityValues())
	}
	return v.Err()
}

// Move requests are deliberately not validated here: clients fire optimistic
// moves and the issues.status CHECK constraint is the backstop.
