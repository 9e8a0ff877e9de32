package erp

import "fmt"

// AuthError indicates the ERP rejected our credentials or a login call failed.
// It is fatal for the run that encounters it.
type AuthError struct {
	Message string
}

func NewAuthErrorf(format string, args ...any) *AuthError {
	return &AuthError{Message: fmt.Sprintf(format, args...)}
}

func (e *AuthError) Error() string {
	return "erp auth: " + e.Message
}

func IsAuthError(err error) bool {
	_, ok := err.(*AuthError)
	return ok
}

// FetchError indicates a feed page request failed. The response body is
// carried so the failure is diagnosable from the run ledger alone.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Message    string
}

func NewFetchError(endpoint string, statusCode int, body string, message string) *FetchError {
	return &FetchError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Body:       body,
		Message:    message,
	}
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("erp fetch %s: status %d: %s: %s", e.Endpoint, e.StatusCode, e.Message, e.Body)
	}
	return fmt.Sprintf("erp fetch %s: %s", e.Endpoint, e.Message)
}

func IsFetchError(err error) bool {
	_, ok := err.(*FetchError)
	return ok
}
