package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/logging"
	"github.com/jbweber/vmwatch/internal/sshutil"
)

// DefaultPath is where the CLI looks for configuration when --config is not given.
const DefaultPath = "/etc/vmwatch/config.yaml"

// Source types.
const (
	SourceCommand = "command"
	SourceSSH     = "ssh"
	SourceLibvirt = "libvirt"
	SourceFile    = "file"
)

// Store types.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Defaults applied by Normalize.
const (
	DefaultStatePath     = "/var/lib/vmwatch/state.yaml"
	DefaultSQLitePath    = "/var/lib/vmwatch/state.db"
	DefaultWatchInterval = time.Minute
	DefaultSSHCommand    = "xe vm-list"
)

// Config represents the complete vmwatch configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Store   StoreConfig   `yaml:"store"`
	Extract ExtractConfig `yaml:"extract"`
	Watch   WatchConfig   `yaml:"watch"`
	Log     LogConfig     `yaml:"log"`
}

// SourceConfig selects where raw inventory reports come from.
type SourceConfig struct {
	Type    string        `yaml:"type"`              // command, ssh, libvirt or file (default: command)
	Command []string      `yaml:"command,omitempty"` // argv for type command (default: xe vm-list)
	Timeout time.Duration `yaml:"timeout,omitempty"` // e.g. "30s"

	SSH     *SSHConfig    `yaml:"ssh,omitempty"`
	Libvirt LibvirtConfig `yaml:"libvirt,omitempty"`
	Path    string        `yaml:"path,omitempty"` // report file for type file
}

// SSHConfig describes a remote host reached over SSH.
type SSHConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user"`
	KeyPath  string `yaml:"key_path,omitempty"`
	Password string `yaml:"password,omitempty"`

	KnownHosts            string `yaml:"known_hosts,omitempty"`
	InsecureIgnoreHostKey bool   `yaml:"insecure_ignore_host_key,omitempty"`

	// Command is the remote inventory command (default: xe vm-list).
	Command string `yaml:"command,omitempty"`
}

// LibvirtConfig points at a local libvirt daemon.
type LibvirtConfig struct {
	Socket string `yaml:"socket,omitempty"` // default: /var/run/libvirt/libvirt-sock
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Type         string        `yaml:"type"` // file or sqlite (default: file)
	Path         string        `yaml:"path,omitempty"`
	PreviousPath string        `yaml:"previous_path,omitempty"` // file store only (default: <path>.previous)
	Backup       *BackupConfig `yaml:"backup,omitempty"`
}

// BackupConfig configures off-host copies of archived snapshots.
type BackupConfig struct {
	SFTP *SFTPConfig `yaml:"sftp,omitempty"`
}

// SFTPConfig is an SSH target plus a remote directory.
type SFTPConfig struct {
	SSHConfig `yaml:",inline"`
	Dir       string `yaml:"dir"`
}

// ExtractConfig names the report fields to read.
type ExtractConfig struct {
	IdentityKey string `yaml:"identity_key,omitempty"`
	NameKey     string `yaml:"name_key,omitempty"`
	StateKey    string `yaml:"state_key,omitempty"`

	// ExcludeSubstring drops records whose name contains it. Pointer to
	// distinguish unset (default marker) from "" (no exclusion).
	ExcludeSubstring *string `yaml:"exclude_substring,omitempty"`

	StrictDuplicates bool `yaml:"strict_duplicates,omitempty"`
}

// WatchConfig configures the long-running poll loop.
type WatchConfig struct {
	Interval    time.Duration `yaml:"interval,omitempty"`     // default: 1m
	MetricsAddr string        `yaml:"metrics_addr,omitempty"` // e.g. ":9310"; empty disables
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// Default returns a normalized configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize sanitizes user input and fills defaults.
// This is called automatically by LoadFromFile before validation.
func (c *Config) Normalize() {
	c.Source.Type = strings.ToLower(strings.TrimSpace(c.Source.Type))
	if c.Source.Type == "" {
		c.Source.Type = SourceCommand
	}
	if c.Source.Type == SourceCommand && len(c.Source.Command) == 0 {
		c.Source.Command = []string{"xe", "vm-list"}
	}
	if c.Source.SSH != nil && c.Source.SSH.Command == "" {
		c.Source.SSH.Command = DefaultSSHCommand
	}

	c.Store.Type = strings.ToLower(strings.TrimSpace(c.Store.Type))
	if c.Store.Type == "" {
		c.Store.Type = StoreFile
	}
	if c.Store.Path == "" {
		if c.Store.Type == StoreSQLite {
			c.Store.Path = DefaultSQLitePath
		} else {
			c.Store.Path = DefaultStatePath
		}
	}

	defaults := inventory.DefaultRules()
	if c.Extract.IdentityKey == "" {
		c.Extract.IdentityKey = defaults.IdentityKey
	}
	if c.Extract.NameKey == "" {
		c.Extract.NameKey = defaults.NameKey
	}
	if c.Extract.StateKey == "" {
		c.Extract.StateKey = defaults.StateKey
	}
	if c.Extract.ExcludeSubstring == nil {
		marker := defaults.ExcludeSubstring
		c.Extract.ExcludeSubstring = &marker
	}

	if c.Watch.Interval == 0 {
		c.Watch.Interval = DefaultWatchInterval
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = logging.FormatText
	}
}

// Validate checks the configuration for errors.
// Does not contact any host - only config structure.
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if c.Watch.Interval < 0 {
		return fmt.Errorf("watch: interval must be > 0, got %s", c.Watch.Interval)
	}
	if c.Watch.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.Watch.MetricsAddr); err != nil {
			return fmt.Errorf("watch: invalid metrics_addr %q: %w", c.Watch.MetricsAddr, err)
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Log.Format != logging.FormatText && c.Log.Format != logging.FormatJSON {
		return fmt.Errorf("log: format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// Validate checks source configuration.
func (s *SourceConfig) Validate() error {
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", s.Timeout)
	}

	switch s.Type {
	case SourceCommand:
		if len(s.Command) == 0 || s.Command[0] == "" {
			return fmt.Errorf("command is required for type command")
		}
	case SourceSSH:
		if s.SSH == nil {
			return fmt.Errorf("ssh section is required for type ssh")
		}
		if err := s.SSH.Validate(); err != nil {
			return fmt.Errorf("ssh: %w", err)
		}
	case SourceLibvirt:
	case SourceFile:
		if s.Path == "" {
			return fmt.Errorf("path is required for type file")
		}
	default:
		return fmt.Errorf("unknown type %q (must be command, ssh, libvirt or file)", s.Type)
	}
	return nil
}

// Validate checks an SSH target.
func (s *SSHConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if s.User == "" {
		return fmt.Errorf("user is required")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}
	if s.KeyPath == "" && s.Password == "" {
		return fmt.Errorf("key_path or password is required")
	}
	if s.KnownHosts == "" && !s.InsecureIgnoreHostKey {
		return fmt.Errorf("known_hosts is required unless insecure_ignore_host_key is set")
	}
	return nil
}

// Target converts s to an sshutil.Target.
func (s *SSHConfig) Target(timeout time.Duration) sshutil.Target {
	return sshutil.Target{
		Host:                  s.Host,
		Port:                  s.Port,
		User:                  s.User,
		Password:              s.Password,
		KeyPath:               s.KeyPath,
		KnownHostsPath:        s.KnownHosts,
		InsecureIgnoreHostKey: s.InsecureIgnoreHostKey,
		Timeout:               timeout,
	}
}

// Validate checks store configuration.
func (s *StoreConfig) Validate() error {
	switch s.Type {
	case StoreFile:
	case StoreSQLite:
		if s.PreviousPath != "" {
			return fmt.Errorf("previous_path is not used by the sqlite store")
		}
	default:
		return fmt.Errorf("unknown type %q (must be file or sqlite)", s.Type)
	}
	if s.PreviousPath != "" && s.PreviousPath == s.Path {
		return fmt.Errorf("previous_path must differ from path")
	}

	if s.Backup != nil && s.Backup.SFTP != nil {
		if err := s.Backup.SFTP.Validate(); err != nil {
			return fmt.Errorf("backup.sftp: %w", err)
		}
		if s.Backup.SFTP.Dir == "" {
			return fmt.Errorf("backup.sftp: dir is required")
		}
	}
	return nil
}

// Rules returns the extraction rules.
func (c *Config) Rules() inventory.Rules {
	rules := inventory.Rules{
		IdentityKey: c.Extract.IdentityKey,
		NameKey:     c.Extract.NameKey,
		StateKey:    c.Extract.StateKey,
	}
	if c.Extract.ExcludeSubstring != nil {
		rules.ExcludeSubstring = *c.Extract.ExcludeSubstring
	}
	return rules
}

// LoadFromFile loads a configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadFromYAML(data)
}

// LoadFromYAML parses, normalizes and validates configuration bytes.
func LoadFromYAML(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Normalize user input before validation
	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Load reads path. When path is the default location and does not exist,
// defaults are returned; an explicitly named missing file is an error.
func Load(path string) (*Config, error) {
	return loadOrDefault(path, DefaultPath)
}

func loadOrDefault(path, defaultPath string) (*Config, error) {
	if path == "" {
		path = defaultPath
	}

	config, err := LoadFromFile(path)
	if err != nil {
		if path == defaultPath && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return config, nil
}
