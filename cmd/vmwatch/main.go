package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmwatch/internal/config"
	"github.com/jbweber/vmwatch/internal/logging"
	"github.com/jbweber/vmwatch/internal/output"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags
var (
	configPath   string
	outputFormat string
	noHeaders    bool
	logLevel     string
	logFormat    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vmwatch",
	Short: "vmwatch - hypervisor VM inventory tracker",
	Long: `vmwatch polls a hypervisor's VM inventory and keeps a durable, annotated
view of it across polls.

Each poll merges the fresh snapshot into the persisted state, reporting VMs
that were added, removed, or changed. The operator's "monitored" flag is kept
for every VM that is still present.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", string(output.FormatTable), "output format: table, yaml, json")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false, "omit table headers")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json (overrides config)")

	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(testConnCmd)
}

// setup loads configuration, applies flag overrides, and installs the logger.
func setup() (*config.Config, *slog.Logger, error) {
	if err := output.ValidateFormat(outputFormat); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err := logging.Setup(os.Stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, nil, err
	}

	return cfg, logger, nil
}

func newFormatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}
