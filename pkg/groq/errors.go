package groq

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx response from the provider. Status 401 and 429 count
// against the key that made the call; everything else is the provider's
// problem, not the key's.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error (status %d)", e.Status)
}

// CountsAgainstKey reports whether the failure should be charged to the
// key's failure count. Rate limiting is charged the same as an invalid key;
// three throttling events deactivate a valid key. That conflation is the
// shipped behavior and is kept on purpose.
func (e *Error) CountsAgainstKey() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusTooManyRequests
}

// KeyFault reports whether err is a provider error charged to the key.
func KeyFault(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.CountsAgainstKey()
}
