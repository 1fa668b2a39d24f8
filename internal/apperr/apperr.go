package apperr

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel errors classifying every failure the service can surface. Each
// carries a machine-readable code; callers classify with errors.Is and map
// to HTTP status via HTTPStatus.
var (
	ErrValidation       = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrUnauthorized     = &Error{Code: CodeUnauthorized, Message: "authentication required"}
	ErrPermissionDenied = &Error{Code: CodePermissionDenied, Message: "permission denied"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "resource not found"}
	ErrStorage          = &Error{Code: CodeStorage, Message: "storage operation failed"}
	ErrUpstream         = &Error{Code: CodeUpstream, Message: "upstream service failed"}
	ErrInternal         = &Error{Code: CodeInternal, Message: "internal error"}

	statusCodes = map[string]int{
		CodeValidation:       http.StatusBadRequest,
		CodeUnauthorized:     http.StatusUnauthorized,
		CodePermissionDenied: http.StatusForbidden,
		CodeNotFound:         http.StatusNotFound,
		CodeStorage:          http.StatusInternalServerError,
		CodeUpstream:         http.StatusInternalServerError,
		CodeInternal:         http.StatusInternalServerError,
	}
)

const (
	CodeValidation       = "validation_error"
	CodeUnauthorized     = "unauthorized"
	CodePermissionDenied = "permission_denied"
	CodeNotFound         = "not_found"
	CodeStorage          = "storage_error"
	CodeUpstream         = "upstream_error"
	CodeInternal         = "internal_error"
)

// Error is a classified sentinel. The wrapped cause and any hints attached
// along the way stay server-side; only Code and the hint chain are safe to
// return to callers.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches any error marked with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds a fresh classified error with a user-safe hint.
func New(sentinel *Error, hint string) error {
	return errors.Mark(errors.WithHint(errors.New(hint), hint), sentinel)
}

// Newf is New with formatting.
func Newf(sentinel *Error, format string, args ...any) error {
	return New(sentinel, fmt.Sprintf(format, args...))
}

// Wrap classifies an existing error and attaches a user-safe hint. The
// original error text is preserved for server-side logs but never shown to
// API callers.
func Wrap(err error, sentinel *Error, hint string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.WithHint(err, hint), sentinel)
}

// Code extracts the machine-readable code, defaulting to internal_error for
// unclassified failures.
func Code(err error) string {
	for _, sentinel := range []*Error{
		ErrValidation, ErrUnauthorized, ErrPermissionDenied,
		ErrNotFound, ErrStorage, ErrUpstream, ErrInternal,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Code
		}
	}
	return CodeInternal
}

// HTTPStatus maps a classified error to its response status.
func HTTPStatus(err error) int {
	if status, ok := statusCodes[Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Hint returns the user-safe message for an error: the outermost hint if one
// was attached, else the generic message for its class.
func Hint(err error) string {
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		return hints[len(hints)-1]
	}
	for _, sentinel := range []*Error{
		ErrValidation, ErrUnauthorized, ErrPermissionDenied,
		ErrNotFound, ErrStorage, ErrUpstream, ErrInternal,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Message
		}
	}
	return ErrInternal.Message
}

// IsValidation reports whether err is classified as a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is classified as not found.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
