// Package errors defines the domain error vocabulary surfaced through the
// API. Errors carry a stable machine-readable code alongside the message.
package errors

// DomainError is an API-visible error with a stable code.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}
