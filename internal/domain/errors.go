package domain

import "errors"

var (
	// ErrAuthentication covers a missing, malformed, or expired credential.
	// Terminal for the connection that presented it; the client must
	// re-establish with a fresh credential.
	ErrAuthentication = errors.New("authentication error")

	// ErrValidation covers a malformed relay request. The request is
	// dropped without side effects.
	ErrValidation = errors.New("invalid relay request")

	// ErrUnknownUser is returned by directory and store lookups for an
	// identity that was never registered.
	ErrUnknownUser = errors.New("unknown user")

	// ErrDuplicateUsername is returned when registering a username that is
	// already taken.
	ErrDuplicateUsername = errors.New("username already exists")
)
