package sshutil

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

func writeTestKey(t *testing.T) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	return path
}

func TestTarget_Addr(t *testing.T) {
	tests := []struct {
		target Target
		want   string
	}{
		{Target{Host: "xen-01"}, "xen-01:22"},
		{Target{Host: "xen-01", Port: 2222}, "xen-01:2222"},
		{Target{Host: "::1", Port: 22}, "[::1]:22"},
	}

	for _, tt := range tests {
		if got := tt.target.Addr(); got != tt.want {
			t.Errorf("Addr() = %s, want %s", got, tt.want)
		}
	}
}

func TestTarget_ClientConfig(t *testing.T) {
	keyPath := writeTestKey(t)

	tests := []struct {
		name    string
		target  Target
		wantErr string
	}{
		{
			name:   "password with insecure host key",
			target: Target{Host: "h", User: "root", Password: "secret", InsecureIgnoreHostKey: true},
		},
		{
			name:   "private key",
			target: Target{Host: "h", User: "root", KeyPath: keyPath, InsecureIgnoreHostKey: true},
		},
		{
			name:    "no auth",
			target:  Target{Host: "h", User: "root", InsecureIgnoreHostKey: true},
			wantErr: "no authentication methods",
		},
		{
			name:    "no host key policy",
			target:  Target{Host: "h", User: "root", Password: "secret"},
			wantErr: "no host key verification",
		},
		{
			name:    "missing key file",
			target:  Target{Host: "h", User: "root", KeyPath: "/nonexistent/key", InsecureIgnoreHostKey: true},
			wantErr: "failed to read SSH key",
		},
		{
			name:    "missing known_hosts",
			target:  Target{Host: "h", User: "root", Password: "x", KnownHostsPath: "/nonexistent/known_hosts"},
			wantErr: "failed to load known_hosts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := tt.target.ClientConfig()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ClientConfig() error = %v", err)
			}
			if config.User != "root" {
				t.Errorf("expected user root, got %s", config.User)
			}
			if config.Timeout != DefaultTimeout {
				t.Errorf("expected default timeout, got %v", config.Timeout)
			}
		})
	}
}

func TestDial_Refused(t *testing.T) {
	target := Target{
		Host:                  "127.0.0.1",
		Port:                  1,
		User:                  "root",
		Password:              "x",
		InsecureIgnoreHostKey: true,
		Timeout:               500 * time.Millisecond,
	}

	if _, err := Dial(context.Background(), target); err == nil {
		t.Fatal("expected dial error")
	}
}
