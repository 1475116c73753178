package wheel

import "errors"

// ValidationError is a problem with the user's input. It is reported back to
// the user and nothing is persisted.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

var (
	ErrNoFillableMonths   = &ValidationError{"all of the last three months already have a wheel"}
	ErrMonthAlreadyFilled = &ValidationError{"a wheel for this month already exists"}
	ErrInvalidLabel       = &ValidationError{"unrecognized month label"}
	ErrInvalidRating      = &ValidationError{"malformed rating"}
	ErrNoActiveSession    = &ValidationError{"no wheel is being built"}
)

var (
	// ErrSelfComparison means the opened wheel is itself the previous month's
	// wheel, so there is nothing to compare it with.
	ErrSelfComparison = errors.New("cannot compare a wheel with itself")
	// ErrComparisonUnavailable means the user has too few wheels to compare.
	ErrComparisonUnavailable = errors.New("not enough wheels to compare")
)

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
