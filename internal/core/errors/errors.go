package errors

import "errors"

// Domain errors - these represent rule violations at the ingestion boundary
var (
	// Ingestion validation
	ErrProviderIDRequired     = errors.New("providerId is required")
	ErrBookingDataRequired    = errors.New("bookingData is required")
	ErrCustomerIDRequired     = errors.New("customerId is required")
	ErrJobCardIDRequired      = errors.New("jobCardId is required")
	ErrConsultationIDRequired = errors.New("consultationId is required")

	// Generic
	ErrBadRequest  = errors.New("bad request")
	ErrInternal    = errors.New("internal server error")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases

func NewValidationError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    err.Error(),
		Code:       "VALIDATION_ERROR",
		StatusCode: 400,
	}
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}
