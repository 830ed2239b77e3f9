// Package billerr holds the error taxonomy shared by the billing packages.
package billerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound            = errors.New("billing: not found")
	ErrDuplicateIdentifier = errors.New("billing: duplicate identifier")
	ErrInvalidTransition   = errors.New("billing: invalid status transition")
	ErrInvoiceSettled      = errors.New("billing: invoice already settled")
	ErrPaymentsDisabled    = errors.New("billing: online payments disabled")
	ErrScanInProgress      = errors.New("billing: late fee scan already running")
)

// ValidationError is a malformed input (row, period, request body).
// It is reported per item and never aborts a batch.
type ValidationError struct {
	Field   string
	Message string
	Details map[string][]string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

// Fields returns the per-field messages, always including Field itself.
func (e *ValidationError) Fields() map[string][]string {
	out := make(map[string][]string, len(e.Details)+1)
	for k, v := range e.Details {
		out[k] = append([]string(nil), v...)
	}
	if e.Field != "" && len(out[e.Field]) == 0 {
		out[e.Field] = []string{e.Message}
	}
	return out
}

func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// FromValidator converts go-playground validator errors into a ValidationError.
// Errors of any other type are returned unchanged.
func FromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	out := &ValidationError{Details: map[string][]string{}}
	for i, fe := range verrs {
		field := jsonName(fe)
		msg := describe(fe)
		if i == 0 {
			out.Field, out.Message = field, msg
		}
		out.Details[field] = append(out.Details[field], msg)
	}
	return out
}

func jsonName(fe validator.FieldError) string {
	// Namespace is "Struct.Field"; strip the struct part.
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return toSnake(ns)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "gtefield":
		return "must be >= " + toSnake(fe.Param())
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed on " + fe.Tag()
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '.' && s[i-1] != '[' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
