package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jbweber/vmwatch/internal/inventory"
)

func TestLoadFromFile_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configYAML := `source:
  type: SSH
  timeout: 45s
  ssh:
    host: xs1.example.com
    user: root
    key_path: /root/.ssh/id_ed25519
    known_hosts: /root/.ssh/known_hosts
store:
  type: sqlite
  path: /var/lib/vmwatch/inventory.db
  backup:
    sftp:
      host: backup.example.com
      user: vmwatch
      password: secret
      insecure_ignore_host_key: true
      dir: /srv/backups/vmwatch
extract:
  exclude_substring: ""
  strict_duplicates: true
watch:
  interval: 5m
  metrics_addr: ":9310"
log:
  level: DEBUG
  format: json
`

	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Source.Type != SourceSSH {
		t.Errorf("Expected source type 'ssh', got %q", config.Source.Type)
	}
	if config.Source.Timeout != 45*time.Second {
		t.Errorf("Expected 45s timeout, got %s", config.Source.Timeout)
	}
	if config.Source.SSH.Command != DefaultSSHCommand {
		t.Errorf("Expected default ssh command, got %q", config.Source.SSH.Command)
	}

	target := config.Source.SSH.Target(config.Source.Timeout)
	if target.Addr() != "xs1.example.com:22" || target.KnownHostsPath != "/root/.ssh/known_hosts" {
		t.Errorf("Unexpected ssh target %+v", target)
	}

	if config.Store.Type != StoreSQLite || config.Store.Path != "/var/lib/vmwatch/inventory.db" {
		t.Errorf("Unexpected store %+v", config.Store)
	}
	sftp := config.Store.Backup.SFTP
	if sftp.Host != "backup.example.com" || sftp.Dir != "/srv/backups/vmwatch" || !sftp.InsecureIgnoreHostKey {
		t.Errorf("Unexpected sftp backup %+v", sftp)
	}

	rules := config.Rules()
	if rules.ExcludeSubstring != "" {
		t.Errorf("Expected exclusion disabled by explicit empty string, got %q", rules.ExcludeSubstring)
	}
	if rules.IdentityKey != inventory.DefaultIdentityKey {
		t.Errorf("Expected default identity key, got %q", rules.IdentityKey)
	}
	if !config.Extract.StrictDuplicates {
		t.Error("Expected strict_duplicates true")
	}

	if config.Watch.Interval != 5*time.Minute || config.Watch.MetricsAddr != ":9310" {
		t.Errorf("Unexpected watch %+v", config.Watch)
	}
	if config.Log.Level != "debug" || config.Log.Format != "json" {
		t.Errorf("Unexpected log %+v", config.Log)
	}
}

func TestDefault(t *testing.T) {
	config := Default()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if config.Source.Type != SourceCommand || strings.Join(config.Source.Command, " ") != "xe vm-list" {
		t.Errorf("Unexpected default source %+v", config.Source)
	}
	if config.Store.Type != StoreFile || config.Store.Path != DefaultStatePath {
		t.Errorf("Unexpected default store %+v", config.Store)
	}
	if config.Watch.Interval != DefaultWatchInterval {
		t.Errorf("Expected default interval, got %s", config.Watch.Interval)
	}
	if got := config.Rules(); got != inventory.DefaultRules() {
		t.Errorf("Expected default rules, got %+v", got)
	}
}

func TestNormalize_SQLiteDefaultPath(t *testing.T) {
	config := &Config{Store: StoreConfig{Type: "SQLite"}}
	config.Normalize()

	if config.Store.Type != StoreSQLite || config.Store.Path != DefaultSQLitePath {
		t.Errorf("Unexpected store after normalize %+v", config.Store)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown source type",
			yaml:    "source:\n  type: snmp\n",
			wantErr: "unknown type",
		},
		{
			name:    "ssh without section",
			yaml:    "source:\n  type: ssh\n",
			wantErr: "ssh section is required",
		},
		{
			name:    "ssh without auth",
			yaml:    "source:\n  type: ssh\n  ssh:\n    host: h\n    user: u\n    known_hosts: /k\n",
			wantErr: "key_path or password is required",
		},
		{
			name:    "ssh without host key policy",
			yaml:    "source:\n  type: ssh\n  ssh:\n    host: h\n    user: u\n    password: p\n",
			wantErr: "known_hosts is required",
		},
		{
			name:    "file without path",
			yaml:    "source:\n  type: file\n",
			wantErr: "path is required",
		},
		{
			name:    "unknown store type",
			yaml:    "store:\n  type: etcd\n",
			wantErr: "must be file or sqlite",
		},
		{
			name:    "previous equals path",
			yaml:    "store:\n  path: /s.yaml\n  previous_path: /s.yaml\n",
			wantErr: "previous_path must differ",
		},
		{
			name:    "sqlite with previous path",
			yaml:    "store:\n  type: sqlite\n  previous_path: /p\n",
			wantErr: "not used by the sqlite store",
		},
		{
			name:    "sftp without dir",
			yaml:    "store:\n  backup:\n    sftp:\n      host: h\n      user: u\n      password: p\n      insecure_ignore_host_key: true\n",
			wantErr: "dir is required",
		},
		{
			name:    "bad metrics addr",
			yaml:    "watch:\n  metrics_addr: 9310\n",
			wantErr: "invalid metrics_addr",
		},
		{
			name:    "negative interval",
			yaml:    "watch:\n  interval: -1s\n",
			wantErr: "interval must be > 0",
		},
		{
			name:    "bad log level",
			yaml:    "log:\n  level: loud\n",
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			yaml:    "log:\n  format: xml\n",
			wantErr: "format must be text or json",
		},
		{
			name:    "bad duration",
			yaml:    "source:\n  timeout: soon\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromYAML([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_DefaultPathMissing(t *testing.T) {
	defaultPath := filepath.Join(t.TempDir(), "config.yaml")

	config, err := loadOrDefault("", defaultPath)
	if err != nil {
		t.Fatalf("Expected defaults for missing default config, got %v", err)
	}
	if config.Store.Path != DefaultStatePath {
		t.Errorf("Expected default store path, got %q", config.Store.Path)
	}
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	dir := t.TempDir()

	_, err := loadOrDefault(filepath.Join(dir, "other.yaml"), filepath.Join(dir, "config.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}
