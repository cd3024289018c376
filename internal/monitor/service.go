// Package monitor runs poll cycles: fetch a report, reconcile it against the
// persisted set, persist the result, and report what changed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jbweber/vmwatch/internal/backup"
	"github.com/jbweber/vmwatch/internal/blocks"
	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/metrics"
	"github.com/jbweber/vmwatch/internal/reconcile"
	"github.com/jbweber/vmwatch/internal/store"
)

// Recorder receives poll cycle telemetry. *metrics.Metrics implements it.
type Recorder interface {
	ObservePoll(result string, d time.Duration)
	ObserveChanges(changes []reconcile.Change)
	SetEntities(total, monitored int)
	BackupFailed()
}

// ErrDuplicateIdentity is returned by Poll when StrictDuplicates is set and
// the snapshot repeats an identity.
var ErrDuplicateIdentity = errors.New("snapshot contains duplicate identities")

// Service wires a source and a store together.
type Service struct {
	Source inventory.Source
	Store  store.Store
	Rules  inventory.Rules

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Recorder is optional.
	Recorder Recorder

	// Backup, when set, receives the archived previous snapshot after each
	// successful save.
	Backup backup.Uploader

	// StrictDuplicates aborts a poll whose snapshot repeats an identity
	// instead of keeping the last record.
	StrictDuplicates bool

	now func() time.Time
}

// Report summarizes one successful poll cycle.
type Report struct {
	RunID     string        `json:"runId" yaml:"runId"`
	StartedAt time.Time     `json:"startedAt" yaml:"startedAt"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	// Entities is the persisted set after the cycle, in presentation order.
	Entities []inventory.Entity `json:"entities" yaml:"entities"`

	Changes    []reconcile.Change                  `json:"changes" yaml:"changes"`
	Unchanged  int                                 `json:"unchanged" yaml:"unchanged"`
	Duplicates []*inventory.DuplicateIdentityError `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
}

// Monitored counts entities in the report with monitored=yes.
func (r *Report) Monitored() int {
	n := 0
	for _, e := range r.Entities {
		if e.Monitored == inventory.MonitoredYes {
			n++
		}
	}
	return n
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) recorder() Recorder {
	if s.Recorder != nil {
		return s.Recorder
	}
	return nopRecorder{}
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Poll runs one cycle. Nothing is persisted unless fetch, extraction, load
// and reconciliation all succeed.
func (s *Service) Poll(ctx context.Context) (report *Report, err error) {
	start := s.clock()
	runID := uuid.New().String()
	log := s.logger().With("run_id", runID)

	defer func() {
		d := s.clock().Sub(start)
		if err != nil {
			s.recorder().ObservePoll(metrics.ResultError, d)
			log.Error("poll failed", "error", err, "duration", d)
			return
		}
		s.recorder().ObservePoll(metrics.ResultSuccess, d)
	}()

	raw, err := s.Source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inventory: %w", err)
	}

	entities, dups := s.Rules.ExtractAll(blocks.Parse(raw))
	for _, dup := range dups {
		log.Warn("duplicate identity in snapshot, keeping last record", "identity", dup.Identity, "count", dup.Count)
	}
	if s.StrictDuplicates && len(dups) > 0 {
		errs := make([]error, 0, len(dups))
		for _, dup := range dups {
			errs = append(errs, dup)
		}
		return nil, fmt.Errorf("%w: %w", ErrDuplicateIdentity, errors.Join(errs...))
	}
	log.Debug("extracted snapshot", "bytes", len(raw), "entities", len(entities))

	result, err := s.commit(ctx, entities)
	if err != nil {
		return nil, err
	}

	s.backup(ctx, log, start)

	report = &Report{
		RunID:      runID,
		StartedAt:  start,
		Duration:   s.clock().Sub(start),
		Entities:   reconcile.Sorted(result.Merged),
		Changes:    result.Changes,
		Unchanged:  result.Unchanged,
		Duplicates: dups,
	}

	s.recorder().ObserveChanges(report.Changes)
	s.recorder().SetEntities(len(report.Entities), report.Monitored())

	counts := reconcile.Count(report.Changes)
	log.Info("poll complete",
		"entities", len(report.Entities),
		"added", counts[reconcile.KindAdded],
		"removed", counts[reconcile.KindRemoved],
		"modified", counts[reconcile.KindModified],
		"unchanged", report.Unchanged,
	)
	for _, c := range report.Changes {
		log.Debug("change", "kind", c.Kind, "identity", c.Identity, "field", c.Field, "old", c.Old, "new", c.New)
	}

	return report, nil
}

// commit runs load, reconcile, archive and save under the store lock.
func (s *Service) commit(ctx context.Context, entities []inventory.Entity) (reconcile.Result, error) {
	unlock, err := s.Store.Lock(ctx)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("failed to lock store: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			s.logger().Warn("failed to release store lock", "error", err)
		}
	}()

	persisted, err := s.Store.Load(ctx)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("failed to load persisted state: %w", err)
	}

	result := reconcile.Reconcile(persisted, entities)

	if err := s.Store.Archive(ctx); err != nil {
		return reconcile.Result{}, fmt.Errorf("failed to archive persisted state: %w", err)
	}
	if err := s.Store.Save(ctx, result.Merged); err != nil {
		return reconcile.Result{}, fmt.Errorf("failed to save reconciled state: %w", err)
	}

	return result, nil
}

// backup uploads the archived snapshot. Failures are logged and counted.
func (s *Service) backup(ctx context.Context, log *slog.Logger, at time.Time) {
	if s.Backup == nil {
		return
	}

	previous, err := s.Store.LoadPrevious(ctx)
	if err != nil {
		s.backupFailed(log, fmt.Errorf("failed to load previous snapshot: %w", err))
		return
	}
	if len(previous) == 0 {
		log.Debug("no previous snapshot to back up")
		return
	}

	data, err := store.Encode(previous)
	if err != nil {
		s.backupFailed(log, err)
		return
	}

	name := backup.SnapshotName(at)
	if err := s.Backup.Upload(ctx, name, data); err != nil {
		s.backupFailed(log, err)
		return
	}
	log.Debug("uploaded snapshot backup", "name", name, "bytes", len(data))
}

func (s *Service) backupFailed(log *slog.Logger, err error) {
	s.recorder().BackupFailed()
	log.Warn("snapshot backup failed", "error", err)
}

// Toggle flips the monitored flag of the entity named by ref, an identity
// or a 1-based list index, and persists the change.
func (s *Service) Toggle(ctx context.Context, ref string) (inventory.Entity, error) {
	unlock, err := s.Store.Lock(ctx)
	if err != nil {
		return inventory.Entity{}, fmt.Errorf("failed to lock store: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			s.logger().Warn("failed to release store lock", "error", err)
		}
	}()

	set, err := s.Store.Load(ctx)
	if err != nil {
		return inventory.Entity{}, fmt.Errorf("failed to load persisted state: %w", err)
	}

	identity, err := reconcile.Resolve(set, ref)
	if err != nil {
		return inventory.Entity{}, err
	}

	next := set.Clone()
	monitored, err := reconcile.Toggle(next, identity)
	if err != nil {
		return inventory.Entity{}, err
	}

	if err := s.Store.Save(ctx, next); err != nil {
		return inventory.Entity{}, fmt.Errorf("failed to save toggled state: %w", err)
	}

	s.logger().Info("toggled monitored flag", "identity", identity, "name", next[identity].Name, "monitored", monitored)
	return next[identity], nil
}

// List returns the persisted set in presentation order.
func (s *Service) List(ctx context.Context) ([]inventory.Entity, error) {
	set, err := s.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted state: %w", err)
	}
	return reconcile.Sorted(set), nil
}

// Diff compares the archived previous set with the current one, including
// monitored flags changed by Toggle between the two slots.
func (s *Service) Diff(ctx context.Context) ([]reconcile.Change, error) {
	previous, err := s.Store.LoadPrevious(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous state: %w", err)
	}
	current, err := s.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted state: %w", err)
	}

	return reconcile.Compare(previous, current), nil
}

// Watch polls once immediately and then every interval until ctx ends.
// Poll failures are logged and the loop continues. onReport may be nil.
func (s *Service) Watch(ctx context.Context, interval time.Duration, onReport func(*Report)) error {
	if interval <= 0 {
		return fmt.Errorf("invalid watch interval %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if report, err := s.Poll(ctx); err == nil && onReport != nil {
			onReport(report)
		}
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) ObservePoll(string, time.Duration) {}
func (nopRecorder) ObserveChanges([]reconcile.Change) {}
func (nopRecorder) SetEntities(int, int) {}
func (nopRecorder) BackupFailed() {}
