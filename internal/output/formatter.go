// Package output renders the VM list and the poll change log for the
// terminal or for scripts.
package output

import (
	"fmt"

	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/reconcile"
)

// Format names an output encoding accepted by -o.
type Format string

const (
	FormatTable Format = "table"
	// FormatYAML uses the same shape as the state file.
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var formats = []Format{FormatTable, FormatYAML, FormatJSON}

// Formatter renders vmwatch results. Table output numbers VM rows from 1
// and that number is what toggle accepts in place of an identity.
type Formatter interface {
	FormatEntities(entities []inventory.Entity) (string, error)
	FormatChanges(changes []reconcile.Change) (string, error)
}

// Options selects the encoding. NoHeaders only affects tables.
type Options struct {
	Format    Format
	NoHeaders bool
}

// NewFormatter returns the Formatter for opts.Format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (supported: %v)", opts.Format, formats)
	}
}

// ValidateFormat reports whether -o names a known format, so commands can
// fail before touching the store.
func ValidateFormat(format string) error {
	for _, f := range formats {
		if Format(format) == f {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q (valid: %v)", format, formats)
}
