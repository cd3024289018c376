// Package inventory turns parsed inventory records into typed VM entities and
// provides the sources that produce raw inventory reports.
package inventory

import "maps"

// Monitored is the operator-controlled annotation on an entity.
type Monitored string

const (
	// MonitoredYes marks an entity the operator wants to watch.
	MonitoredYes Monitored = "yes"
	// MonitoredNo is the default for every newly observed entity.
	MonitoredNo Monitored = "no"
)

// Valid reports whether m is one of the two recognised values.
func (m Monitored) Valid() bool {
	return m == MonitoredYes || m == MonitoredNo
}

// Flip returns the opposite value. Anything other than yes flips to yes.
func (m Monitored) Flip() Monitored {
	if m == MonitoredYes {
		return MonitoredNo
	}
	return MonitoredYes
}

// Entity is one VM as tracked across snapshots.
type Entity struct {
	// Identity is the hypervisor-assigned UUID. It never changes.
	Identity string `yaml:"identity" json:"identity"`

	// Name is the display label reported by the hypervisor.
	Name string `yaml:"name" json:"name"`

	// State is the power state, passed through verbatim (running, halted, ...).
	State string `yaml:"state" json:"state"`

	// Monitored is set only by the operator, never by the inventory source.
	Monitored Monitored `yaml:"monitored" json:"monitored"`

	// Extra holds persisted fields this version does not know about so that
	// a load/save cycle does not drop them.
	Extra map[string]any `yaml:",inline" json:"extra,omitempty"`
}

// Clone returns a copy of e that does not share its Extra map.
func (e Entity) Clone() Entity {
	if e.Extra != nil {
		e.Extra = maps.Clone(e.Extra)
	}
	return e
}
