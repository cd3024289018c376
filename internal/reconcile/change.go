package reconcile

import (
	"fmt"

	"github.com/jbweber/vmwatch/internal/inventory"
)

// ChangeKind classifies a Change.
type ChangeKind string

const (
	// KindAdded is an identity seen for the first time.
	KindAdded ChangeKind = "added"
	// KindRemoved is a persisted identity missing from the snapshot.
	KindRemoved ChangeKind = "removed"
	// KindModified is one field that differs between persisted and fresh.
	KindModified ChangeKind = "modified"
)

// Entity fields a Modified change can name.
const (
	FieldName      = "name"
	FieldState     = "state"
	FieldMonitored = "monitored"
)

// Change is one entry of the change log. It is never persisted.
//
// Added carries the new entity's Name and State. Removed carries the last
// known Name and State. Modified carries Field, Old and New.
type Change struct {
	Kind     ChangeKind `json:"kind" yaml:"kind"`
	Identity string     `json:"identity" yaml:"identity"`

	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	State string `json:"state,omitempty" yaml:"state,omitempty"`

	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	Old   string `json:"old,omitempty" yaml:"old,omitempty"`
	New   string `json:"new,omitempty" yaml:"new,omitempty"`
}

// Added records a newly observed entity.
func Added(e inventory.Entity) Change {
	return Change{Kind: KindAdded, Identity: e.Identity, Name: e.Name, State: e.State}
}

// Removed records an entity that left the inventory.
func Removed(e inventory.Entity) Change {
	return Change{Kind: KindRemoved, Identity: e.Identity, Name: e.Name, State: e.State}
}

// Modified records one field that changed value.
func Modified(identity, field, oldValue, newValue string) Change {
	return Change{Kind: KindModified, Identity: identity, Field: field, Old: oldValue, New: newValue}
}

func (c Change) String() string {
	switch c.Kind {
	case KindAdded:
		return fmt.Sprintf("added %s (%s, %s)", c.Identity, c.Name, c.State)
	case KindRemoved:
		return fmt.Sprintf("removed %s (%s, %s)", c.Identity, c.Name, c.State)
	case KindModified:
		return fmt.Sprintf("modified %s %s: %q -> %q", c.Identity, c.Field, c.Old, c.New)
	default:
		return fmt.Sprintf("%s %s", c.Kind, c.Identity)
	}
}

// Count tallies changes by kind.
func Count(changes []Change) map[ChangeKind]int {
	counts := map[ChangeKind]int{}
	for _, c := range changes {
		counts[c.Kind]++
	}
	return counts
}
