package validate

import "strings"

// FieldError describes one invalid or missing field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RejectedError is returned when a submission fails validation. No store is
// touched for a rejected submission.
type RejectedError struct {
	Errors []FieldError
}

func (e *RejectedError) Error() string {
	lines := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		lines = append(lines, "Error at "+fe.Field+": "+fe.Message)
	}
	return strings.Join(lines, "\n")
}
