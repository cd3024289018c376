package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/reconcile"
)

// JSONFormatter formats entities and changes as JSON arrays.
type JSONFormatter struct{}

// FormatEntities formats entities as a JSON array.
func (f *JSONFormatter) FormatEntities(entities []inventory.Entity) (string, error) {
	if len(entities) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal entities to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// FormatChanges formats a change log as a JSON array.
func (f *JSONFormatter) FormatChanges(changes []reconcile.Change) (string, error) {
	if len(changes) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(changes, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal changes to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
