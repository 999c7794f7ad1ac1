package document

import "fmt"

// ValidationError reports a malformed document or identifier.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid document: " + e.Message
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
