package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmwatch/internal/blocks"
	"github.com/jbweber/vmwatch/internal/config"
	"github.com/jbweber/vmwatch/internal/libvirt"
)

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test the configured inventory source",
	Long: `Fetch one inventory report from the configured source and show how many
records and VMs it yields. Nothing is saved.

For the libvirt source the daemon version, hostname and URI are shown too.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		fmt.Printf("Testing %s source...\n", cfg.Source.Type)

		if cfg.Source.Type == config.SourceLibvirt {
			client, err := libvirt.Connect(cfg.Source.Libvirt.Socket, cfg.Source.Timeout)
			if err != nil {
				return fmt.Errorf("failed to connect to libvirt: %w", err)
			}
			defer func() {
				if closeErr := client.Close(); closeErr != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
				}
			}()

			fmt.Println("✓ Connected to libvirt daemon")

			if err := client.Ping(); err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}

			v, err := client.Describe()
			if err != nil {
				return err
			}
			fmt.Printf("✓ Libvirt version: %s\n", v)
			fmt.Printf("✓ Hypervisor hostname: %s\n", v.Hostname)
			fmt.Printf("✓ Connection URI: %s\n", v.URI)
		}

		src, err := buildSource(cfg, logger)
		if err != nil {
			return err
		}

		start := time.Now()
		raw, err := src.Fetch(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to fetch inventory: %w", err)
		}
		records := blocks.Parse(raw)
		entities, dups := cfg.Rules().ExtractAll(records)

		fmt.Printf("✓ Fetched %d bytes in %s\n", len(raw), time.Since(start).Round(time.Millisecond))
		fmt.Printf("✓ Parsed %d records, %d VMs after exclusion\n", len(records), len(entities))
		if len(dups) > 0 {
			fmt.Printf("! %d duplicate identities in report\n", len(dups))
		}

		fmt.Println("\nConnection test successful!")
		return nil
	},
}
