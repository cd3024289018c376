package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/jbweber/vmwatch/internal/backup"
	"github.com/jbweber/vmwatch/internal/config"
	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/logging"
	"github.com/jbweber/vmwatch/internal/store"
)

func TestBuildSource(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "default command", yaml: "{}", want: "*inventory.CommandSource"},
		{name: "file", yaml: "source:\n  type: file\n  path: /tmp/report.txt\n", want: "*inventory.FileSource"},
		{name: "libvirt", yaml: "source:\n  type: libvirt\n", want: "*inventory.LibvirtSource"},
		{
			name: "ssh",
			yaml: "source:\n  type: ssh\n  ssh:\n    host: xs1\n    user: root\n    password: p\n    insecure_ignore_host_key: true\n",
			want: "*inventory.SSHSource",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.LoadFromYAML([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("LoadFromYAML() error = %v", err)
			}

			src, err := buildSource(cfg, logging.Discard())
			if err != nil {
				t.Fatalf("buildSource() error = %v", err)
			}

			var got string
			switch src.(type) {
			case *inventory.CommandSource:
				got = "*inventory.CommandSource"
			case *inventory.FileSource:
				got = "*inventory.FileSource"
			case *inventory.LibvirtSource:
				got = "*inventory.LibvirtSource"
			case *inventory.SSHSource:
				got = "*inventory.SSHSource"
			}
			if got != tt.want {
				t.Errorf("buildSource() = %T, want %s", src, tt.want)
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "state.yaml")
	st, err := openStore(cfg)
	if err != nil {
		t.Fatalf("openStore(file) error = %v", err)
	}
	if _, ok := st.(*store.FileStore); !ok {
		t.Errorf("expected *store.FileStore, got %T", st)
	}

	cfg.Store.Type = config.StoreSQLite
	cfg.Store.Path = filepath.Join(dir, "state.db")
	st, err = openStore(cfg)
	if err != nil {
		t.Fatalf("openStore(sqlite) error = %v", err)
	}
	defer func() { _ = st.Close() }()
	if _, ok := st.(*store.SQLiteStore); !ok {
		t.Errorf("expected *store.SQLiteStore, got %T", st)
	}
}

func TestBuildUploader(t *testing.T) {
	cfg := config.Default()
	if up := buildUploader(cfg); up != nil {
		t.Errorf("expected no uploader without backup config, got %T", up)
	}

	cfg.Store.Backup = &config.BackupConfig{SFTP: &config.SFTPConfig{
		SSHConfig: config.SSHConfig{Host: "backup", User: "u", Password: "p", InsecureIgnoreHostKey: true},
		Dir:       "/srv",
	}}
	up, ok := buildUploader(cfg).(*backup.SFTPUploader)
	if !ok {
		t.Fatalf("expected *backup.SFTPUploader")
	}
	if up.Dir != "/srv" || up.Target.Host != "backup" {
		t.Errorf("unexpected uploader %+v", up)
	}
}

func TestReadReport_Stdin(t *testing.T) {
	got, err := readReport(nil, strings.NewReader("uuid ( RO): u1\n"))
	if err != nil {
		t.Fatalf("readReport() error = %v", err)
	}
	if got != "uuid ( RO): u1\n" {
		t.Errorf("unexpected report %q", got)
	}
}

func TestReadReport_MissingFile(t *testing.T) {
	if _, err := readReport([]string{filepath.Join(t.TempDir(), "nope")}, strings.NewReader("")); err == nil {
		t.Error("expected error for missing report file")
	}
}
