package service

import "errors"

// Session engine sentinels. Handlers map these to typed response codes.
var (
	// Admission errors; all four are definite and mutate nothing.
	ErrPackageNotFound     = errors.New("exam package not found or not published")
	ErrAlreadyInProgress   = errors.New("an attempt is already in progress for this package")
	ErrMaxAttemptsReached  = errors.New("maximum attempt count reached for this package")
	ErrInsufficientCredits = errors.New("insufficient credits to start a paid attempt")

	// Attempt access. A foreign attempt reads as missing on purpose, so
	// there is no separate ownership sentinel.
	ErrAttemptNotFound = errors.New("attempt not found")

	// ErrAttemptLocked: the attempt is terminal or past its deadline and
	// accepts no further mutation.
	ErrAttemptLocked        = errors.New("attempt no longer accepts writes")
	ErrQuestionNotInPackage = errors.New("question is not part of this attempt's package")

	// Integrity.
	ErrUnknownViolationKind = errors.New("unknown violation kind")
)
