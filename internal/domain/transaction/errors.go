package transaction

import "errors"

// Domain errors. The HTTP layer maps each of these to a status code.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("transaction not found")
	ErrUnavailable     = errors.New("service unavailable")
	ErrInternal        = errors.New("internal error")

	// ErrInvalidID is returned by Repository.ParseID for identifiers the store cannot address.
	ErrInvalidID = errors.New("invalid transaction id")
)
