package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/reconcile"
)

// YAMLFormatter formats entities and changes as YAML sequences.
type YAMLFormatter struct{}

// FormatEntities formats entities as a YAML sequence.
func (f *YAMLFormatter) FormatEntities(entities []inventory.Entity) (string, error) {
	if entities == nil {
		entities = []inventory.Entity{}
	}

	data, err := yaml.Marshal(entities)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entities to YAML: %w", err)
	}

	return string(data), nil
}

// FormatChanges formats a change log as a YAML sequence.
func (f *YAMLFormatter) FormatChanges(changes []reconcile.Change) (string, error) {
	if changes == nil {
		changes = []reconcile.Change{}
	}

	data, err := yaml.Marshal(changes)
	if err != nil {
		return "", fmt.Errorf("failed to marshal changes to YAML: %w", err)
	}

	return string(data), nil
}
