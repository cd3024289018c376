package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmwatch/internal/blocks"
	"github.com/jbweber/vmwatch/internal/reconcile"
)

var showEntities bool

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one poll cycle",
	Long: `Fetch a fresh inventory snapshot, reconcile it against the persisted
state, save the result, and print what changed.

The persisted state is left untouched if the snapshot cannot be obtained or
the persisted state cannot be read.

Output formats:
  -o table  Human-readable change table (default)
  -o yaml   Change log as YAML
  -o json   Change log as JSON`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		svc, st, err := newService(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer closeStore(st, logger)

		report, err := svc.Poll(cmd.Context())
		if err != nil {
			return fmt.Errorf("poll failed: %w", err)
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		var result string
		if showEntities {
			result, err = formatter.FormatEntities(report.Entities)
		} else {
			result, err = formatter.FormatChanges(report.Changes)
		}
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked VMs",
	Long: `List the VMs in the persisted state, ordered by name.

The INDEX column can be passed to toggle in place of an identity.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		svc, st, err := newService(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer closeStore(st, logger)

		entities, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatEntities(entities)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <identity|index>",
	Short: "Flip the monitored flag of a VM",
	Long: `Flip the monitored flag of a VM between yes and no and save it.

The VM is named by its identity or by its INDEX in the list output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		svc, st, err := newService(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer closeStore(st, logger)

		entity, err := svc.Toggle(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to toggle %s: %w", args[0], err)
		}

		fmt.Printf("✓ %s (%s) monitored: %s\n", entity.Name, entity.Identity, entity.Monitored)
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show changes between the previous and current state",
	Long: `Compare the state archived before the last poll with the current state
and print the differences.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		svc, st, err := newService(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer closeStore(st, logger)

		changes, err := svc.Diff(cmd.Context())
		if err != nil {
			return err
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatChanges(changes)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse [report-file]",
	Short: "Parse an inventory report without saving anything",
	Long: `Parse a raw inventory report and print the VMs the extraction rules
produce. Reads standard input when no file is given.

Useful for checking extraction settings against real output, e.g.:
  xe vm-list | vmwatch parse`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		raw, err := readReport(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		entities, dups := cfg.Rules().ExtractAll(blocks.Parse(raw))
		for _, dup := range dups {
			logger.Warn("duplicate identity in report", "identity", dup.Identity, "count", dup.Count)
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatEntities(reconcile.Sorted(reconcile.NewSet(entities)))
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

func init() {
	pollCmd.Flags().BoolVar(&showEntities, "show-entities", false, "print the resulting VM list instead of the change log")
}

func readReport(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read report: %w", err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read report from stdin: %w", err)
	}
	return string(data), nil
}
