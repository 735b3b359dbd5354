package approval

import "errors"

var (
	// ErrBrokerClosed indicates a register attempt after shutdown began.
	ErrBrokerClosed = errors.New("approval: broker closed")

	// ErrDuplicateID indicates an id collision at registration.
	// This is an invariant violation, not a user-facing condition.
	ErrDuplicateID = errors.New("approval: duplicate request id")

	// ErrMaxPendingExceeded indicates too many pending approval requests.
	ErrMaxPendingExceeded = errors.New("approval: max pending requests exceeded")

	// ErrRequestNotFound indicates the approval request was not found.
	ErrRequestNotFound = errors.New("approval: request not found")
)
