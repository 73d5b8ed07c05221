// Package apierr holds the error taxonomy shared by the attendance client and
// the helpers that turn any error into a message a user can act on.
package apierr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnauthenticated is returned when no valid credential is available or the
// backend rejects the one presented.
var ErrUnauthenticated = errors.New("authentication required")

// GenericMessage is shown when the backend gives no usable message.
const GenericMessage = "Something went wrong while contacting the server. Please try again."

// FieldError describes a problem with a single input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is raised before any request is sent.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError from field errors.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Field returns the message for a field, if any.
func (e *ValidationError) Field(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Field == name {
			return f.Message, true
		}
	}
	return "", false
}

// WorkflowError is an operation refused locally before any request is sent,
// such as editing a finalized session.
type WorkflowError struct {
	Msg string
}

// NewWorkflowError builds a WorkflowError.
func NewWorkflowError(msg string) *WorkflowError {
	return &WorkflowError{Msg: msg}
}

func (e *WorkflowError) Error() string { return e.Msg }

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error %d", e.StatusCode)
	}
	return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Message)
}

// PartialSaveError reports per-student failures of a bulk save. Succeeded
// records stay written; nothing is rolled back.
type PartialSaveError struct {
	Attempted int
	Failed    map[int64]error
}

func (e *PartialSaveError) Error() string {
	ids := make([]int64, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%d of %d attendance records failed to save (students %s)",
		len(e.Failed), e.Attempted, strings.Join(strs, ", "))
}
