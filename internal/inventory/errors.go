package inventory

import (
	"errors"
	"fmt"
)

// ErrInput is returned when a raw inventory report cannot be obtained or is
// empty. No reconciliation may proceed on it.
var ErrInput = errors.New("inventory input unavailable")

// DuplicateIdentityError reports a snapshot that contained more than one
// record for the same identity. Only the last record was kept.
type DuplicateIdentityError struct {
	Identity string
	Count    int
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("identity %s appears %d times in snapshot", e.Identity, e.Count)
}

// inputError wraps cause so that errors.Is(err, ErrInput) holds. cause may be nil.
func inputError(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrInput, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrInput, msg, cause)
}
