package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	s := Open("", nil)
	want := map[Key]bool{
		AutomaticScanning: true,
		BlockMalicious:    true,
		ThreatAlerts:      true,
		PeriodicReports:   false,
		UpdateNotices:     true,
	}
	for k, v := range want {
		got, err := s.Get(k)
		if err != nil {
			t.Fatalf("Get(%s): %v", k, err)
		}
		if got != v {
			t.Errorf("Get(%s) = %v, want %v", k, got, v)
		}
	}
}

func TestUnknownKey(t *testing.T) {
	t.Parallel()

	s := Open("", nil)
	if _, err := s.Get("bogus"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Get(bogus) err = %v, want ErrUnknownKey", err)
	}
	if err := s.Update("bogus", true); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Update(bogus) err = %v, want ErrUnknownKey", err)
	}
}

func TestUpdateNotifiesInOrder(t *testing.T) {
	t.Parallel()

	s := Open("", nil)
	var order []int
	s.Subscribe(func(Change) { order = append(order, 1) })
	s.Subscribe(func(Change) { order = append(order, 2) })
	s.Subscribe(func(Change) { order = append(order, 3) })

	if err := s.Update(BlockMalicious, false); err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("notification order = %v, want [1 2 3]", order)
	}
}

func TestUpdateUnchangedIsNoOp(t *testing.T) {
	t.Parallel()

	s := Open("", nil)
	fired := 0
	s.Subscribe(func(Change) { fired++ })

	if err := s.Update(ThreatAlerts, true); err != nil { // already true
		t.Fatal(err)
	}
	if fired != 0 {
		t.Errorf("unchanged update fired %d notifications, want 0", fired)
	}
	if got := len(s.History()); got != 0 {
		t.Errorf("unchanged update recorded %d history entries, want 0", got)
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	t.Parallel()

	s := Open("", nil)
	s.Subscribe(func(Change) { panic("boom") })
	reached := false
	s.Subscribe(func(Change) { reached = true })

	if err := s.Update(UpdateNotices, false); err != nil {
		t.Fatal(err)
	}
	if !reached {
		t.Error("panic in one subscriber starved the next")
	}
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	s := Open("", nil)
	fired := 0
	cancel := s.Subscribe(func(Change) { fired++ })

	s.Update(BlockMalicious, false)
	cancel()
	cancel() // idempotent
	s.Update(BlockMalicious, true)

	if fired != 1 {
		t.Errorf("subscriber fired %d times after cancel, want 1", fired)
	}
}

func TestHistoryRecordsChanges(t *testing.T) {
	t.Parallel()

	s := Open("", nil)
	s.Update(BlockMalicious, false)
	s.Update(PeriodicReports, true)

	h := s.History()
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2", len(h))
	}
	if h[0].Key != BlockMalicious || h[0].Old != true || h[0].New != false {
		t.Errorf("unexpected first change: %+v", h[0])
	}
	if h[1].Key != PeriodicReports || h[1].New != true {
		t.Errorf("unexpected second change: %+v", h[1])
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "settings.json")

	s := Open(path, nil)
	if err := s.Update(AutomaticScanning, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(PeriodicReports, true); err != nil {
		t.Fatal(err)
	}

	// Simulated restart: a fresh store over the same file.
	s2 := Open(path, nil)
	if v, _ := s2.Get(AutomaticScanning); v {
		t.Error("automatic_scanning should persist as false")
	}
	if v, _ := s2.Get(PeriodicReports); !v {
		t.Error("periodic_reports should persist as true")
	}
	if v, _ := s2.Get(BlockMalicious); !v {
		t.Error("untouched switch should stay at its default")
	}
	if got := len(s2.History()); got != 0 {
		t.Errorf("history should be session-scoped, got %d entries after restart", got)
	}
}

func TestCorruptSnapshotFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Open(path, nil)
	if v, _ := s.Get(BlockMalicious); !v {
		t.Error("corrupt snapshot should leave defaults intact")
	}
}

func TestUnknownKeysInSnapshotIgnored(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"block_malicious": false, "stale_switch": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Open(path, nil)
	if v, _ := s.Get(BlockMalicious); v {
		t.Error("known key from snapshot should load")
	}
	if _, err := s.Get("stale_switch"); !errors.Is(err, ErrUnknownKey) {
		t.Error("unknown snapshot key must not widen the key set")
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	t.Parallel()

	s := Open("", nil)
	fired := 0
	s.Subscribe(func(Change) { fired++ })

	s.Update(BlockMalicious, false)
	s.Reset()

	if v, _ := s.Get(BlockMalicious); !v {
		t.Error("Reset should restore the default")
	}
	if fired != 1 {
		t.Errorf("Reset emitted per-key changes: %d notifications total, want 1", fired)
	}
}
