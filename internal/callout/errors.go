package callout

import "errors"

var (
	// ErrTooMany is returned by Check when admitting the requested batch
	// would exceed the table capacity.
	ErrTooMany = errors.New("too many callouts")

	// ErrTooLong is returned by Check when the delay would overflow the
	// seconds counter.
	ErrTooLong = errors.New("too long delay")

	// ErrRestoreOverflow is returned by Restore when the dumped state does
	// not fit the current table capacity.
	ErrRestoreOverflow = errors.New("restored too many callouts")
)
