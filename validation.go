package ctrlr_kinematics

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Literal kinds accepted by ValidateLiteral.
const (
	LiteralAngle = "angle"
)

var literals = map[string][]string{
	LiteralAngle: {string(Degrees), string(Radians)},
}

// ValidationError is returned when an argument is rejected before anything is sent to
// the controller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err (or anything it wraps) is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateLiteral fails unless value is one of the literals registered for kind.
func ValidateLiteral(kind, value string) error {
	allowed, ok := literals[kind]
	if !ok {
		return &ValidationError{Field: kind, Reason: "unknown literal kind"}
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:  kind,
		Reason: fmt.Sprintf("%q is not one of [%s]", value, strings.Join(allowed, ", ")),
	}
}

// ValidateLength fails unless a sequence of length n has exactly expected elements.
func ValidateLength(what string, n, expected int) error {
	if n != expected {
		return &ValidationError{
			Field:  what,
			Reason: fmt.Sprintf("expected %d elements, got %d", expected, n),
		}
	}
	return nil
}
