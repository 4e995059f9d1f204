package validation

import "regexp"

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	addressRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	specialRegex = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// IsValidAddress reports whether s looks like a plausible settlement
// currency address. This is a shape check only; the bridge provider is the
// final authority on whether an address is deliverable.
func IsValidAddress(s string) bool {
	if len(s) < MinAddressLength || len(s) > MaxAddressLength {
		return false
	}
	return addressRegex.MatchString(s)
}

// HasSpecialChar checks if a string contains at least one special character
func HasSpecialChar(s string) bool {
	return specialRegex.MatchString(s)
}
