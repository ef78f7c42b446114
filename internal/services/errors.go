package services

// Request-level error taxonomy, mapped to HTTP statuses by the handlers.

type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }
