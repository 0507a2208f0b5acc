package idgen

import "errors"

// Common errors for short code generation.
var (
	// ErrInvalidConfig is returned when a generator configuration cannot produce codes.
	ErrInvalidConfig = errors.New("invalid code generator config")

	// ErrAllocationExhausted is returned when a candidate chain runs out of attempts.
	ErrAllocationExhausted = errors.New("maximum attempts exceeded for unique short code allocation")
)
