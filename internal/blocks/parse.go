// Package blocks parses block-oriented inventory reports.
//
// A report is a sequence of records separated by blank lines. Each record
// is a group of "key: value" lines, the layout printed by `xe vm-list`:
//
//	uuid ( RO)           : 0b6c2c0e-...
//	     name-label ( RW): web-01
//	    power-state ( RO): running
//
// Keys are kept verbatim (including access-mode suffixes such as "( RO)");
// interpreting them is left to the caller.
package blocks

import (
	"fmt"
	"strings"
)

// Record is one parsed block: field key to field value.
type Record map[string]string

// Parse splits raw report text into records in source order.
//
// Parse never fails. Lines without a ':' separator, lines with an empty key,
// and whitespace-only blocks are skipped. When a key repeats inside a block
// the last value wins.
func Parse(raw string) []Record {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var records []Record
	for _, block := range strings.Split(raw, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}

		record := Record{}
		for _, line := range strings.Split(block, "\n") {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			record[key] = strings.TrimSpace(value)
		}

		// A block made only of unparseable lines carries nothing to extract
		if len(record) == 0 {
			continue
		}
		records = append(records, record)
	}

	return records
}

// Format renders records in the same block layout Parse accepts.
//
// Only the given keys are written, in the given order, right-aligned the way
// xe aligns them. Keys missing from a record are omitted for that record.
func Format(records []Record, keys []string) string {
	width := 0
	for _, k := range keys {
		if len(k) > width {
			width = len(k)
		}
	}

	var b strings.Builder
	for _, r := range records {
		for _, k := range keys {
			v, ok := r[k]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "%*s: %s\n", width, k, v)
		}
		b.WriteString("\n\n")
	}

	return b.String()
}
