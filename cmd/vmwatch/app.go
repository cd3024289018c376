package main

import (
	"fmt"
	"log/slog"

	"github.com/jbweber/vmwatch/internal/backup"
	"github.com/jbweber/vmwatch/internal/config"
	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/monitor"
	"github.com/jbweber/vmwatch/internal/store"
	"github.com/jbweber/vmwatch/internal/sshutil"
)

// buildSource returns the inventory source selected by cfg.
func buildSource(cfg *config.Config, logger *slog.Logger) (inventory.Source, error) {
	src := cfg.Source
	switch src.Type {
	case config.SourceCommand:
		return &inventory.CommandSource{Command: src.Command, Timeout: src.Timeout}, nil
	case config.SourceSSH:
		return inventory.NewSSHSource(src.SSH.Target(sshutil.DefaultTimeout), src.SSH.Command, src.Timeout), nil
	case config.SourceLibvirt:
		return &inventory.LibvirtSource{
			SocketPath: src.Libvirt.Socket,
			Timeout:    src.Timeout,
			Rules:      cfg.Rules(),
			Logger:     logger,
		}, nil
	case config.SourceFile:
		return &inventory.FileSource{Path: src.Path}, nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", src.Type)
	}
}

// openStore opens the persistence backend selected by cfg.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case config.StoreFile:
		return store.NewFileStore(cfg.Store.Path, cfg.Store.PreviousPath), nil
	case config.StoreSQLite:
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
	}
}

// buildUploader returns the configured backup uploader, or nil.
func buildUploader(cfg *config.Config) backup.Uploader {
	if cfg.Store.Backup == nil || cfg.Store.Backup.SFTP == nil {
		return nil
	}
	sftp := cfg.Store.Backup.SFTP
	return backup.NewSFTPUploader(sftp.Target(sshutil.DefaultTimeout), sftp.Dir)
}

// newService wires a monitor.Service from cfg. The caller must Close the
// returned store.
func newService(cfg *config.Config, logger *slog.Logger, rec monitor.Recorder) (*monitor.Service, store.Store, error) {
	src, err := buildSource(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	svc := &monitor.Service{
		Source:           src,
		Store:            st,
		Rules:            cfg.Rules(),
		Logger:           logger,
		Recorder:         rec,
		Backup:           buildUploader(cfg),
		StrictDuplicates: cfg.Extract.StrictDuplicates,
	}
	return svc, st, nil
}

func closeStore(st store.Store, logger *slog.Logger) {
	if err := st.Close(); err != nil {
		logger.Warn("failed to close store", "error", err)
	}
}
