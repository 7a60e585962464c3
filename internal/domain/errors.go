package domain

import "errors"

var (
	// ErrDataInsufficient signals that an operation had too few documents or
	// price points to produce a meaningful result. Callers treat it as a
	// routine condition, not a failure.
	ErrDataInsufficient = errors.New("insufficient data")

	// ErrParse signals that a capability returned structured output the core
	// could not interpret; the documented fallback value is substituted.
	ErrParse = errors.New("unparsable capability output")

	// ErrProviderUnavailable signals that every provider in a fallback chain
	// failed or was rate limited for one call.
	ErrProviderUnavailable = errors.New("all providers unavailable")
)
