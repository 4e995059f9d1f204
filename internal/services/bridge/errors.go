package bridge

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying on the next poll: network
// trouble, timeouts, provider 5xx. No state change may be derived from it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient bridge error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be retried rather than treated as
// a provider verdict.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ErrExchangeNotFound is returned when the provider does not know the
// exchange id. It is terminal: retrying cannot make the exchange appear.
var ErrExchangeNotFound = errors.New("bridge exchange not found")
