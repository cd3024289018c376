package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/reconcile"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	empty, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on fresh db error = %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty set, got %d", len(empty))
	}

	want := sampleSet()
	want["u1"] = inventory.Entity{
		Identity:  "u1",
		Name:      "web-01",
		State:     "running",
		Monitored: inventory.MonitoredYes,
		Extra:     map[string]any{"owner": "ops"},
	}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestSQLiteStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	if err := s.Save(ctx, sampleSet()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	next := reconcile.Set{"u3": {Identity: "u3", Name: "cache", State: "running", Monitored: inventory.MonitoredNo}}
	if err := s.Save(ctx, next); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, next) {
		t.Errorf("Load() = %+v, want %+v", got, next)
	}
}

func TestSQLiteStore_Archive(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	if err := s.Archive(ctx); err != nil {
		t.Fatalf("Archive() before any save error = %v", err)
	}
	prev, err := s.LoadPrevious(ctx)
	if err != nil {
		t.Fatalf("LoadPrevious() error = %v", err)
	}
	if len(prev) != 0 {
		t.Fatalf("expected empty previous set, got %d", len(prev))
	}

	first := sampleSet()
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Archive(ctx); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := s.Save(ctx, reconcile.Set{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	prev, err = s.LoadPrevious(ctx)
	if err != nil {
		t.Fatalf("LoadPrevious() error = %v", err)
	}
	if !reflect.DeepEqual(prev, first) {
		t.Errorf("LoadPrevious() = %+v, want %+v", prev, first)
	}
}

func TestSQLiteStore_CorruptExtra(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	if _, err := s.DB().Exec(
		`INSERT INTO entities(identity, name, state, monitored, extra) VALUES ('u1', 'a', 'running', 'no', '{not json')`,
	); err != nil {
		t.Fatalf("failed to seed row: %v", err)
	}

	_, err := s.Load(ctx)
	if !IsIOError(err) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt in chain, got %v", err)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.Save(ctx, sampleSet()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() reopen error = %v", err)
	}
	defer func() { _ = s2.Close() }()

	got, err := s2.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 entities after reopen, got %d", len(got))
	}
}

func TestSQLiteStore_NonStringExtraKeys(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	set := reconcile.Set{
		"u1": {
			Identity:  "u1",
			Name:      "web-01",
			State:     "running",
			Monitored: inventory.MonitoredYes,
			Extra: map[string]any{
				"ports": map[any]any{80: "http", true: "enabled"},
				"tags":  []any{map[any]any{1: "first"}},
			},
		},
	}
	if err := s.Save(ctx, set); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]any{
		"ports": map[string]any{"80": "http", "true": "enabled"},
		"tags":  []any{map[string]any{"1": "first"}},
	}
	if !reflect.DeepEqual(got["u1"].Extra, want) {
		t.Errorf("Extra = %#v, want %#v", got["u1"].Extra, want)
	}
}
