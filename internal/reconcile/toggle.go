package reconcile

import (
	"fmt"
	"strconv"

	"github.com/jbweber/vmwatch/internal/inventory"
)

// NotFoundError is returned when an identity or index does not name an
// entity in the set.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entity %s not found", e.Ref)
}

// Toggle flips the monitored flag of identity in s and returns the new value.
// s is left unchanged when identity is absent.
func Toggle(s Set, identity string) (inventory.Monitored, error) {
	e, ok := s[identity]
	if !ok {
		return "", &NotFoundError{Ref: identity}
	}

	e.Monitored = e.Monitored.Flip()
	s[identity] = e
	return e.Monitored, nil
}

// Resolve maps ref to an identity in s. ref is either an identity or a
// 1-based index into Sorted(s). An exact identity match takes precedence.
func Resolve(s Set, ref string) (string, error) {
	if _, ok := s[ref]; ok {
		return ref, nil
	}

	if n, err := strconv.Atoi(ref); err == nil {
		sorted := Sorted(s)
		if n >= 1 && n <= len(sorted) {
			return sorted[n-1].Identity, nil
		}
	}

	return "", &NotFoundError{Ref: ref}
}
