package domain

import "errors"

var (
	// ErrNotFound: referenced site or variant does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoActiveVariants: the site has no variant eligible for traffic.
	// Callers serve the control experience, never a hard failure.
	ErrNoActiveVariants = errors.New("no active variants")

	// ErrInvalidTransition: a lifecycle rule was violated (e.g. approving a
	// killed variant). No state change happens.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrStoreUnavailable: transient storage failure. Hot-path readers fall
	// back to a fresh draw instead of blocking.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvariantViolation: a conversion raced ahead of its impression.
	// Logged and clamped, never surfaced to callers.
	ErrInvariantViolation = errors.New("conversion count would exceed visitor count")
)
