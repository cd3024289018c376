package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jbweber/vmwatch/internal/reconcile"
	"github.com/jbweber/vmwatch/internal/store"
)

// mockSource returns canned reports in order; the last one repeats.
type mockSource struct {
	reports []string
	err     error
	calls   int
}

func (m *mockSource) Fetch(_ context.Context) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	i := m.calls - 1
	if i >= len(m.reports) {
		i = len(m.reports) - 1
	}
	return m.reports[i], nil
}

// mockStore is an in-memory store.Store with failure injection.
type mockStore struct {
	mu       sync.Mutex
	current  reconcile.Set
	previous reconcile.Set
	saved    bool

	loadErr    error
	saveErr    error
	archiveErr error
	lockErr    error

	saves    int
	archives int
	locked   bool
	unlocks  int
}

func newMockStore(current reconcile.Set) *mockStore {
	return &mockStore{current: current, saved: current != nil}
}

func (m *mockStore) Load(_ context.Context) (reconcile.Set, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.current == nil {
		return reconcile.Set{}, nil
	}
	return m.current.Clone(), nil
}

func (m *mockStore) LoadPrevious(_ context.Context) (reconcile.Set, error) {
	if m.previous == nil {
		return reconcile.Set{}, nil
	}
	return m.previous.Clone(), nil
}

func (m *mockStore) Save(_ context.Context, set reconcile.Set) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.current = set.Clone()
	m.saved = true
	return nil
}

func (m *mockStore) Archive(_ context.Context) error {
	if m.archiveErr != nil {
		return m.archiveErr
	}
	m.archives++
	if m.saved {
		m.previous = m.current.Clone()
	}
	return nil
}

func (m *mockStore) Lock(_ context.Context) (store.Unlock, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	m.mu.Lock()
	m.locked = true
	return func() error {
		m.locked = false
		m.unlocks++
		m.mu.Unlock()
		return nil
	}, nil
}

func (m *mockStore) Close() error { return nil }

// mockRecorder records telemetry calls.
type mockRecorder struct {
	polls          map[string]int
	changes        int
	total          int
	monitored      int
	backupFailures int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{polls: map[string]int{}}
}

func (m *mockRecorder) ObservePoll(result string, _ time.Duration) { m.polls[result]++ }
func (m *mockRecorder) ObserveChanges(c []reconcile.Change) { m.changes += len(c) }
func (m *mockRecorder) SetEntities(total, monitored int) { m.total, m.monitored = total, monitored }
func (m *mockRecorder) BackupFailed() { m.backupFailures++ }

// mockUploader captures uploads.
type mockUploader struct {
	names []string
	data  [][]byte
	err   error
}

func (m *mockUploader) Upload(_ context.Context, name string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.names = append(m.names, name)
	m.data = append(m.data, data)
	return nil
}
