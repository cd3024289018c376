package inventory

import (
	"strings"

	"github.com/jbweber/vmwatch/internal/blocks"
)

const (
	// DefaultIdentityKey is the uuid field as printed by `xe vm-list`.
	DefaultIdentityKey = "uuid ( RO)"
	// DefaultNameKey is the name-label field as printed by `xe vm-list`.
	DefaultNameKey = "name-label ( RW)"
	// DefaultStateKey is the power-state field as printed by `xe vm-list`.
	DefaultStateKey = "power-state ( RO)"
	// DefaultExcludeSubstring marks the dom0 pseudo-VM on every XenServer host.
	DefaultExcludeSubstring = "Control domain"
)

// Rules name the record fields to read and the exclusion marker to apply.
type Rules struct {
	IdentityKey string
	NameKey     string
	StateKey    string

	// ExcludeSubstring drops any record whose name contains it. Empty
	// disables exclusion.
	ExcludeSubstring string
}

// DefaultRules returns rules matching `xe vm-list` output.
func DefaultRules() Rules {
	return Rules{
		IdentityKey:      DefaultIdentityKey,
		NameKey:          DefaultNameKey,
		StateKey:         DefaultStateKey,
		ExcludeSubstring: DefaultExcludeSubstring,
	}
}

// Keys returns the field keys in report order.
func (r Rules) Keys() []string {
	return []string{r.IdentityKey, r.NameKey, r.StateKey}
}

// Extract projects a record into an Entity.
//
// It returns false when the record has no identity or no name, or when the
// name carries the exclusion marker. The extracted entity is always
// unmonitored; carrying a prior annotation forward is the reconciler's job.
func (r Rules) Extract(rec blocks.Record) (Entity, bool) {
	identity := rec[r.IdentityKey]
	name, hasName := rec[r.NameKey]
	if identity == "" || !hasName || name == "" {
		return Entity{}, false
	}

	if r.ExcludeSubstring != "" && strings.Contains(name, r.ExcludeSubstring) {
		return Entity{}, false
	}

	return Entity{
		Identity:  identity,
		Name:      name,
		State:     rec[r.StateKey],
		Monitored: MonitoredNo,
	}, true
}

// ExtractAll extracts every record, in order.
//
// When several records share an identity the last one wins and keeps the
// position of the first. Each duplicated identity is reported once.
func (r Rules) ExtractAll(records []blocks.Record) ([]Entity, []*DuplicateIdentityError) {
	entities := make([]Entity, 0, len(records))
	position := make(map[string]int, len(records))
	seen := make(map[string]int, len(records))
	var order []string

	for _, rec := range records {
		e, ok := r.Extract(rec)
		if !ok {
			continue
		}

		seen[e.Identity]++
		if i, dup := position[e.Identity]; dup {
			entities[i] = e
			if seen[e.Identity] == 2 {
				order = append(order, e.Identity)
			}
			continue
		}

		position[e.Identity] = len(entities)
		entities = append(entities, e)
	}

	var dups []*DuplicateIdentityError
	for _, id := range order {
		dups = append(dups, &DuplicateIdentityError{Identity: id, Count: seen[id]})
	}

	return entities, dups
}
