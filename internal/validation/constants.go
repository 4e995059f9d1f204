package validation

const (
	// Password requirements
	MinPasswordLength = 8
	MaxPasswordLength = 72

	// Address lengths accepted for the settlement currency. Covers the
	// standard and integrated address encodings.
	MinAddressLength = 26
	MaxAddressLength = 106
)
