// Package reconcile merges a fresh inventory snapshot into persisted state.
//
// The persisted record is the only source of truth for the monitored
// annotation, so Reconcile carries it forward for every identity present in
// both sets and never takes it from the snapshot. Identities missing from the
// snapshot are dropped immediately; there is no grace period.
package reconcile

import (
	"sort"

	"github.com/jbweber/vmwatch/internal/inventory"
)

// Set is an entity set keyed by identity.
type Set map[string]inventory.Entity

// NewSet builds a Set from entities. Later entities replace earlier ones
// with the same identity.
func NewSet(entities []inventory.Entity) Set {
	s := make(Set, len(entities))
	for _, e := range entities {
		s[e.Identity] = e.Clone()
	}
	return s
}

// Clone returns a deep copy of s.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for id, e := range s {
		c[id] = e.Clone()
	}
	return c
}

// Result is the outcome of one reconciliation.
type Result struct {
	// Merged is the new persisted state.
	Merged Set

	// Changes lists every difference found, in snapshot order, followed by
	// removals sorted by identity.
	Changes []Change

	// Unchanged counts identities present in both sets with no change.
	Unchanged int
}

// Reconcile merges fresh into persisted. Neither input is modified.
//
// Duplicate identities in fresh are resolved last-wins; callers that want to
// surface them should use inventory.Rules.ExtractAll, which reports them.
func Reconcile(persisted Set, fresh []inventory.Entity) Result {
	merged := make(Set, len(fresh))
	result := Result{Merged: merged}

	// Resolve duplicates up front so each identity is classified once
	var order []string
	latest := make(map[string]inventory.Entity, len(fresh))
	for _, e := range fresh {
		if _, seen := latest[e.Identity]; !seen {
			order = append(order, e.Identity)
		}
		latest[e.Identity] = e
	}

	for _, id := range order {
		next := latest[id]

		prev, known := persisted[id]
		if !known {
			added := next.Clone()
			added.Monitored = inventory.MonitoredNo
			merged[id] = added
			result.Changes = append(result.Changes, Added(added))
			continue
		}

		cur := prev.Clone()
		changed := false

		if cur.Name != next.Name {
			result.Changes = append(result.Changes, Modified(id, FieldName, cur.Name, next.Name))
			cur.Name = next.Name
			changed = true
		}
		if cur.State != next.State {
			result.Changes = append(result.Changes, Modified(id, FieldState, cur.State, next.State))
			cur.State = next.State
			changed = true
		}
		if !cur.Monitored.Valid() {
			result.Changes = append(result.Changes,
				Modified(id, FieldMonitored, string(cur.Monitored), string(inventory.MonitoredNo)))
			cur.Monitored = inventory.MonitoredNo
			changed = true
		}

		if !changed {
			result.Unchanged++
		}
		merged[id] = cur
	}

	var gone []string
	for id := range persisted {
		if _, ok := latest[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		result.Changes = append(result.Changes, Removed(persisted[id]))
	}

	return result
}

// Sorted returns the entities of s in presentation order: by name, then by
// identity for equal names.
func Sorted(s Set) []inventory.Entity {
	out := make([]inventory.Entity, 0, len(s))
	for _, e := range s {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Identity < out[j].Identity
	})
	return out
}
