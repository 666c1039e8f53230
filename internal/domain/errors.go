package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrLockHeld        = errors.New("lock already held")
	ErrContextDone     = errors.New("context cancelled")

	// Validation errors, rejected synchronously with no state change.
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidConfidence = errors.New("confidence outside permitted range")
	ErrMarketLocked      = errors.New("market is locked")
	ErrMarketNotLocked   = errors.New("market is not locked")
	ErrDeadlinePassed    = errors.New("market deadline has passed")
	ErrDeadlineNotReached = errors.New("market deadline not reached")

	// Settlement / resolution errors.
	ErrAlreadyResolved  = errors.New("market already resolved")
	ErrAmbiguousVerdict = errors.New("verdict source returned a non-binary answer")
	ErrNoVerdict        = errors.New("no verdict obtained for market")
)
