package contracts

import "errors"

var (
	// ErrUpstreamUnavailable wraps network or provider failures. Never fatal to a scan.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrInvalidQuote marks a zero current price or previous close
	ErrInvalidQuote = errors.New("invalid quote")

	// ErrConfiguration is fatal at startup
	ErrConfiguration = errors.New("configuration error")
)
