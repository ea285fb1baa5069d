package nephoscale

import "fmt"

// AuthenticationError is returned when the API rejects the held
// credentials with a 401. Callers must treat it as fatal and not retry.
type AuthenticationError struct{}

func (e *AuthenticationError) Error() string {
	return "authorization failed"
}

// NotFoundError is returned when the referenced resource does not exist
// on the provider side.
type NotFoundError struct{}

func (e *NotFoundError) Error() string {
	return "resource not found"
}

// ValidationError is returned before any remote call is made when a
// mandatory create field is missing.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s cannot be blank", e.Field)
}

// RemoteError is returned for any non-whitelisted response status. The
// raw body is kept for diagnostics.
type RemoteError struct {
	StatusCode int
	Body       []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("unexpected response status=%d body=%s", e.StatusCode, string(e.Body))
}
