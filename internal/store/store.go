// Package store persists entity sets between poll cycles.
//
// Two backends are provided: FileStore keeps a YAML document next to a
// "previous" copy, SQLiteStore keeps both in one database. Both serialize
// writers with an advisory lock so an operator toggle and an automated poll
// cannot interleave their read-modify-write cycles.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/reconcile"
)

// Store loads and saves the persisted entity set.
type Store interface {
	// Load returns the current set. A store with nothing persisted yet
	// returns an empty set, not an error.
	Load(ctx context.Context) (reconcile.Set, error)

	// LoadPrevious returns the set captured by the last Archive.
	LoadPrevious(ctx context.Context) (reconcile.Set, error)

	// Save replaces the current set. On failure the prior state is intact.
	Save(ctx context.Context, set reconcile.Set) error

	// Archive copies the current set into the previous slot. It is a no-op
	// when nothing is persisted yet.
	Archive(ctx context.Context) error

	// Lock takes the writer lock, blocking until it is free or ctx ends.
	Lock(ctx context.Context) (Unlock, error)

	Close() error
}

// Unlock releases a lock taken with Store.Lock.
type Unlock func() error

// IOError reports a failure reading or writing persisted state. Corrupt
// state is an IOError too; it is never treated as an empty set.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsIOError reports whether err is, or wraps, an IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// ErrCorrupt marks persisted state that was readable but not valid.
var ErrCorrupt = errors.New("persisted state is corrupt")

// toSet validates loaded entities and indexes them by identity.
func toSet(entities []inventory.Entity) (reconcile.Set, error) {
	set := make(reconcile.Set, len(entities))
	for i, e := range entities {
		if e.Identity == "" {
			return nil, fmt.Errorf("%w: record %d has no identity", ErrCorrupt, i)
		}
		if _, dup := set[e.Identity]; dup {
			return nil, fmt.Errorf("%w: identity %s appears more than once", ErrCorrupt, e.Identity)
		}
		set[e.Identity] = e
	}
	return set, nil
}

// ordered returns the entities of set sorted by identity, the order in
// which both backends serialize.
func ordered(set reconcile.Set) []inventory.Entity {
	out := make([]inventory.Entity, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity < out[j].Identity
	})
	return out
}
