package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stocky-app/stocky-core/internal/infrastructure/logging"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// entry holds the current state for one device. A nil pointer marks an
// entry removed by Delete.
type entry struct {
	state atomic.Pointer[State]
}

// Registry maps device ids to their State.
//
// The index map is guarded by an RWMutex held only to find or insert an
// entry. Updates to a device swap the entry's pointer with a
// compare-and-swap, so scans from different devices never contend and
// scans from the same device are linearised by Version.
//
// When a Repository is configured every committed state is written through
// to it. The in-memory registry is authoritative; persistence failures are
// logged and do not fail the update.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	repo   Repository
	logger Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry. repo may be nil for a purely
// in-memory registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		repo:    repo,
		logger:  noopLogger{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock replaces the time source used for LastScanAt.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// RefreshCache loads persisted states. A persisted state replaces the
// in-memory one only if its version is newer. Call once at startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}

	states, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading scanner states: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range states {
		st := states[i].clone()
		e, ok := r.entries[st.DeviceID]
		if !ok {
			e = &entry{}
			r.entries[st.DeviceID] = e
		}
		if cur := e.state.Load(); cur != nil && cur.Version >= st.Version {
			continue
		}
		e.state.Store(&st)
	}

	r.logger.Info("scanner state cache refreshed", "count", len(states))
	return nil
}

// lookup returns the live entry for id, or nil.
func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := r.entries[id]
	if e == nil || e.state.Load() == nil {
		return nil
	}
	return e
}

// GetOrCreate returns the state for id, creating the first-sight state
// (ModeAdd, no location, no UI, Version 0) if the device is unknown.
// Concurrent first-sight calls for the same id create exactly one state.
//
// On a cache miss a configured Repository is consulted first, so a state
// persisted by an earlier run is adopted rather than reset.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (State, error) {
	if id == "" {
		return State{}, ErrInvalidDeviceID
	}

	if e := r.lookup(id); e != nil {
		if st := e.state.Load(); st != nil {
			return st.clone(), nil
		}
	}

	stored, found, err := r.load(ctx, id)
	if err != nil {
		return State{}, err
	}

	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		if st := e.state.Load(); st != nil {
			r.mu.Unlock()
			return st.clone(), nil
		}
	} else {
		e = &entry{}
		r.entries[id] = e
	}
	st := stored
	if !found {
		st = newState(id, r.now())
	}
	e.state.Store(&st)
	r.mu.Unlock()

	if found {
		r.logger.Info("scanner state restored", "device_id", logging.RedactKey(id), "version", st.Version)
		return st.clone(), nil
	}

	r.logger.Info("scanner registered", "device_id", logging.RedactKey(id))
	r.persist(ctx, e, st)
	return st.clone(), nil
}

// load reads id from the repository. found is false when there is no
// repository or no row.
func (r *Registry) load(ctx context.Context, id string) (State, bool, error) {
	if r.repo == nil {
		return State{}, false, nil
	}
	st, err := r.repo.Get(ctx, id)
	switch {
	case err == nil:
		return st.clone(), true, nil
	case errors.Is(err, ErrNotFound):
		return State{}, false, nil
	default:
		return State{}, false, fmt.Errorf("loading persisted scanner state: %w", err)
	}
}

// Get returns the state for id or ErrNotFound.
func (r *Registry) Get(_ context.Context, id string) (State, error) {
	e := r.lookup(id)
	if e == nil {
		return State{}, ErrNotFound
	}
	st := e.state.Load()
	if st == nil {
		return State{}, ErrNotFound
	}
	return st.clone(), nil
}

// CompareAndUpdate applies mutate to a copy of the current state and
// installs it only if the stored version still equals expectedVersion.
// On success the new state has Version expectedVersion+1 and a refreshed
// LastScanAt.
//
// Returns ErrNotFound for an unknown device and a *ConflictError
// (errors.Is ErrConflict) when the version has moved on.
func (r *Registry) CompareAndUpdate(ctx context.Context, id string, expectedVersion uint64, mutate Mutator) (State, error) {
	e := r.lookup(id)
	if e == nil {
		return State{}, ErrNotFound
	}

	cur := e.state.Load()
	if cur == nil {
		return State{}, ErrNotFound
	}
	if cur.Version != expectedVersion {
		return State{}, &ConflictError{DeviceID: id, Expected: expectedVersion, Actual: cur.Version}
	}

	next := cur.clone()
	if mutate != nil {
		mutate(&next)
	}
	next.DeviceID = id
	next.Version = cur.Version + 1
	next.LastScanAt = r.now()

	if !e.state.CompareAndSwap(cur, &next) {
		latest := e.state.Load()
		if latest == nil {
			return State{}, ErrNotFound
		}
		return State{}, &ConflictError{DeviceID: id, Expected: expectedVersion, Actual: latest.Version}
	}

	r.persist(ctx, e, next)
	return next.clone(), nil
}

// Delete removes a device. Any in-flight CompareAndUpdate for it fails with
// ErrNotFound; the next scan from the device starts from first sight.
//
// The in-memory state is removed even when the persisted row cannot be;
// that failure is returned so the caller can retry, since a surviving row
// would be restored on the device's next scan.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok || e.state.Swap(nil) == nil {
		return ErrNotFound
	}

	if r.repo != nil {
		if err := r.repo.Delete(ctx, id); err != nil {
			r.logger.Warn("failed to delete persisted scanner state", "device_id", logging.RedactKey(id), "error", err)
			return fmt.Errorf("deleting persisted scanner state: %w", err)
		}
	}
	r.logger.Info("scanner deleted", "device_id", logging.RedactKey(id))
	return nil
}

// List returns a snapshot of all states ordered by device id.
func (r *Registry) List(_ context.Context) []State {
	r.mu.RLock()
	states := make([]State, 0, len(r.entries))
	for _, e := range r.entries {
		if st := e.state.Load(); st != nil {
			states = append(states, st.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].DeviceID < states[j].DeviceID
	})
	return states
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Stats summarises the registry.
type Stats struct {
	Total      int          `json:"total"`
	ByMode     map[Mode]int `json:"by_mode"`
	Associated int          `json:"associated"`
	Unbound    int          `json:"unbound"`
}

// Stats counts devices by mode and by association.
func (r *Registry) Stats(ctx context.Context) Stats {
	s := Stats{ByMode: make(map[Mode]int, len(AllModes))}
	for _, m := range AllModes {
		s.ByMode[m] = 0
	}
	for _, st := range r.List(ctx) {
		s.Total++
		s.ByMode[st.Mode]++
		if st.Bound() {
			s.Associated++
		} else {
			s.Unbound++
		}
	}
	return s
}

// persist writes st through to the repository. If e was deleted while the
// write was in flight the row is removed again, so a racing update cannot
// resurrect a deleted device.
func (r *Registry) persist(ctx context.Context, e *entry, st State) {
	if r.repo == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := r.repo.Upsert(ctx, st); err != nil {
		r.logger.Warn("failed to persist scanner state",
			"device_id", logging.RedactKey(st.DeviceID),
			"version", st.Version,
			"error", err,
		)
		return
	}
	if e.state.Load() != nil {
		return
	}
	if err := r.repo.Delete(ctx, st.DeviceID); err != nil {
		r.logger.Warn("failed to remove state written after delete", "device_id", logging.RedactKey(st.DeviceID), "error", err)
		return
	}
	// A device re-created after the delete keeps its own row.
	if fresh := r.lookup(st.DeviceID); fresh != nil {
		if cur := fresh.state.Load(); cur != nil {
			if err := r.repo.Upsert(ctx, *cur); err != nil {
				r.logger.Warn("failed to persist scanner state", "device_id", logging.RedactKey(st.DeviceID), "error", err)
			}
		}
	}
}
