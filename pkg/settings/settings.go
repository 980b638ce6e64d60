// Package settings provides the process-wide, observable policy switch
// store. The key set is fixed and closed: every switch is known at compile
// time, has a default, and can only be flipped, never added or removed.
//
// The store persists its full snapshot to a single JSON file. Persistence is
// best-effort: a failed write is logged and the in-memory state stays
// authoritative for the running session.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/urlsentry/urlsentry/pkg/jsonutil"
)

// Key names one policy switch.
type Key string

const (
	// AutomaticScanning gates whether the coordinator contacts the
	// classification service at all.
	AutomaticScanning Key = "automatic_scanning"
	// BlockMalicious gates the blocking side effect for severity >= 7.
	BlockMalicious Key = "block_malicious"
	// ThreatAlerts gates the alerting side effect.
	ThreatAlerts Key = "threat_alerts"
	// PeriodicReports gates scheduled report generation.
	PeriodicReports Key = "periodic_reports"
	// UpdateNotices gates signature/update notifications.
	UpdateNotices Key = "update_notices"
)

// Defaults returns the default value of every switch.
func Defaults() map[Key]bool {
	return map[Key]bool{
		AutomaticScanning: true,
		BlockMalicious:    true,
		ThreatAlerts:      true,
		PeriodicReports:   false,
		UpdateNotices:     true,
	}
}

// Keys returns the fixed key set in stable order.
func Keys() []Key {
	return []Key{AutomaticScanning, BlockMalicious, ThreatAlerts, PeriodicReports, UpdateNotices}
}

// Change records one successful switch mutation.
type Change struct {
	Key  Key       `json:"key"`
	Old  bool      `json:"old"`
	New  bool      `json:"new"`
	Time time.Time `json:"time"`
}

type subscriber struct {
	id int
	fn func(Change)
}

// Store holds the live switch values. It is safe for concurrent use.
// Subscribers are notified synchronously, in registration order, for every
// successful mutation.
type Store struct {
	mu      sync.RWMutex
	values  map[Key]bool
	history []Change
	subs    []subscriber
	nextSub int

	path   string
	logger *slog.Logger
}

// Open constructs a Store, loading the persisted snapshot at path over the
// defaults. A missing file is not an error; a corrupt file is logged and
// ignored so a bad disk state can never brick startup. path may be empty to
// disable persistence (useful in tests).
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		values: Defaults(),
		path:   path,
		logger: logger,
	}
	if path != "" {
		s.load()
	}
	return s
}

// load merges the persisted snapshot over the defaults. Unknown keys in the
// file are rejected, so a stale snapshot cannot widen the key set.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("settings snapshot unreadable, using defaults", "path", s.path, "err", err)
		}
		return
	}
	var persisted map[Key]bool
	if err := jsonutil.Unmarshal(data, &persisted); err != nil {
		s.logger.Warn("settings snapshot corrupt, using defaults", "path", s.path, "err", err)
		return
	}
	for k, v := range persisted {
		if _, ok := s.values[k]; ok {
			s.values[k] = v
		} else {
			s.logger.Warn("ignoring unknown key in settings snapshot", "key", k)
		}
	}
}

// Get returns the current value of k, or ErrUnknownKey.
func (s *Store) Get(k Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownKey, k)
	}
	return v, nil
}

// Update sets k to v. Setting an unchanged value is a successful no-op that
// emits nothing. Otherwise the in-memory state is updated, the change is
// appended to history, the snapshot is persisted best-effort, and every
// subscriber is notified synchronously in registration order.
func (s *Store) Update(k Key, v bool) error {
	s.mu.Lock()
	old, ok := s.values[k]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownKey, k)
	}
	if old == v {
		s.mu.Unlock()
		return nil
	}

	s.values[k] = v
	ch := Change{Key: k, Old: old, New: v, Time: time.Now()}
	s.history = append(s.history, ch)
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	s.persist()

	for _, sub := range subs {
		s.notify(sub, ch)
	}
	return nil
}

// notify delivers one change to one subscriber, isolating panics so a
// misbehaving callback cannot break fan-out to the rest.
func (s *Store) notify(sub subscriber, ch Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("settings subscriber panicked", "key", ch.Key, "panic", r)
		}
	}()
	sub.fn(ch)
}

// Subscribe registers fn for every future Change and returns a disposer.
// Disposal is idempotent.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

// Reset restores every switch to its default and persists the snapshot.
// No per-key Change records are emitted for a whole-state reset.
func (s *Store) Reset() {
	s.mu.Lock()
	s.values = Defaults()
	s.mu.Unlock()
	s.persist()
}

// Snapshot returns a copy of the current switch values.
func (s *Store) Snapshot() map[Key]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Key]bool, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// History returns a copy of the recorded changes since startup. History is
// session-scoped; only the current snapshot is persisted.
func (s *Store) History() []Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Change, len(s.history))
	copy(out, s.history)
	return out
}

// persist writes the full snapshot atomically (temp file + rename).
// Failure is logged, never propagated: the live session does not depend on
// durability.
func (s *Store) persist() {
	if s.path == "" {
		return
	}
	data, err := jsonutil.MarshalIndent(s.Snapshot(), "  ")
	if err != nil {
		s.logger.Error("settings snapshot encode failed", "err", err)
		return
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Error("settings snapshot dir create failed", "path", dir, "err", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("settings snapshot write failed", "path", tmp, "err", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("settings snapshot rename failed", "path", s.path, "err", err)
	}
}
