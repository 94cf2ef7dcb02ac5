package validation

import (
	"fmt"
	"strings"
)

// maxEchoedValue caps the offending value echoed back in an error. Step URLs
// and raw post bodies can be long.
const maxEchoedValue = 128

// Path addresses a value inside a web scenario, for example
// steps[1].query_fields[0].name.
type Path string

// Child returns the path of the named member of p.
func (p Path) Child(name string) Path {
	if p == "" {
		return Path(name)
	}
	return p + "." + Path(name)
}

// Index returns the path of element i of the list at p.
func (p Path) Index(i int) Path {
	return Path(fmt.Sprintf("%s[%d]", p, i))
}

// ValidationError describes one invalid value.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for field, shortening value
// when it is too long to echo.
func NewValidationError(field, value, message string) *ValidationError {
	if len(value) > maxEchoedValue {
		value = value[:maxEchoedValue] + "..."
	}
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ValidationErrors collects every problem found in one request, in the order
// the fields were checked.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Add records a problem with the value at path.
func (e *ValidationErrors) Add(path Path, value, message string) {
	*e = append(*e, NewValidationError(string(path), value, message))
}

// HasErrors reports whether any problem was recorded.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

