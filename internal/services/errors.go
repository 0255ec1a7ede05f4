package services

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnsupportedFormatError struct{ Message string }

func (e *UnsupportedFormatError) Error() string { return e.Message }
