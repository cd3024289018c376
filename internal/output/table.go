package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/reconcile"
)

// TableFormatter formats entities and changes as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatEntities formats entities as a numbered table.
func (f *TableFormatter) FormatEntities(entities []inventory.Entity) (string, error) {
	if len(entities) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "INDEX\tNAME\tSTATE\tMONITORED\tIDENTITY")
	}

	for i, e := range entities {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			i+1, e.Name, orDash(e.State), orDash(string(e.Monitored)), e.Identity)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatChanges formats a change log as a table.
func (f *TableFormatter) FormatChanges(changes []reconcile.Change) (string, error) {
	if len(changes) == 0 {
		return "No changes\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "KIND\tIDENTITY\tNAME\tFIELD\tOLD\tNEW")
	}

	for _, c := range changes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Kind, c.Identity, orDash(c.Name), orDash(c.Field), orDash(c.Old), orDash(c.New))
	}

	_ = w.Flush()
	return buf.String(), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
