package scryfall

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound reports that the provider has no matching card.
var ErrNotFound = errors.New("scryfall: card not found")

// StatusError is a non-2xx response from the provider.
type StatusError struct {
	StatusCode int
	Code       string
	Details    string
}

func (e *StatusError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("scryfall: status %d (%s): %s", e.StatusCode, e.Code, e.Details)
	}
	return fmt.Sprintf("scryfall: status %d", e.StatusCode)
}

// Is makes a 404 StatusError match ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsStatusError reports whether err carries a provider status code.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
