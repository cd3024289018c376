package reconcile

import "sort"

// Compare lists the differences between two stored sets, such as the
// previous and current slots. Unlike Reconcile, every field of after is
// taken as recorded, so monitored changes are reported with their real
// values and nothing is repaired.
//
// Added and modified identities come first, sorted by identity, then
// removals sorted by identity.
func Compare(before, after Set) []Change {
	ids := make([]string, 0, len(after))
	for id := range after {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var changes []Change
	for _, id := range ids {
		next := after[id]
		prev, known := before[id]
		if !known {
			changes = append(changes, Added(next))
			continue
		}

		if prev.Name != next.Name {
			changes = append(changes, Modified(id, FieldName, prev.Name, next.Name))
		}
		if prev.State != next.State {
			changes = append(changes, Modified(id, FieldState, prev.State, next.State))
		}
		if prev.Monitored != next.Monitored {
			changes = append(changes, Modified(id, FieldMonitored, string(prev.Monitored), string(next.Monitored)))
		}
	}

	var gone []string
	for id := range before {
		if _, ok := after[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		changes = append(changes, Removed(before[id]))
	}

	return changes
}
