package domain

import "errors"

var (
	// ErrUnknownPolicy is returned when a policy name is not registered.
	ErrUnknownPolicy = errors.New("unknown rate limit policy")
	// ErrInvalidPolicy is returned when policy parameters fail validation.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	// ErrStoreUnavailable wraps any failure of the shared counter store.
	ErrStoreUnavailable = errors.New("counter store unavailable")
	// ErrInvalidKeyDerivation is returned when a key strategy fails or yields an empty key.
	ErrInvalidKeyDerivation = errors.New("invalid key derivation")
	// ErrEngineNotConfigured is returned by an engine without a limiter cache.
	ErrEngineNotConfigured = errors.New("admission engine not configured")
)

// IsConfigDefect reports whether err comes from misconfiguration rather than
// from the caller or the store.
func IsConfigDefect(err error) bool {
	return errors.Is(err, ErrUnknownPolicy) ||
		errors.Is(err, ErrInvalidKeyDerivation) ||
		errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrEngineNotConfigured)
}
