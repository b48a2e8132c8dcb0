package heartbeat

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

var fixed = time.Date(2024, 1, 15, 7, 45, 0, 0, time.UTC)

func TestTriggerNowWritesStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "heartbeat.json")
	next := fixed.Add(24 * time.Hour)
	svc := NewService(Config{
		Probe: func() Snapshot {
			return Snapshot{
				Sessions: 2, Reminders: 1, NextReminder: &next, Tasks: []string{"resolve_1"},
				DeliveryFailures: map[string]int{"clear_choices": 3},
			}
		},
		Path: path,
		Now:  func() time.Time { return fixed },
	})

	if err := svc.TriggerNow(); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.Time.Equal(fixed) || got.Sessions != 2 || got.Reminders != 1 || len(got.Tasks) != 1 {
		t.Errorf("unexpected snapshot %+v", got)
	}
	if got.DeliveryFailures["clear_choices"] != 3 {
		t.Errorf("DeliveryFailures = %v", got.DeliveryFailures)
	}
	if got.NextReminder == nil || !got.NextReminder.Equal(next) {
		t.Errorf("NextReminder = %v", got.NextReminder)
	}
}

func TestTriggerNowWithoutProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	svc := NewService(Config{Path: path, Now: func() time.Time { return fixed }})
	if err := svc.TriggerNow(); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Tasks == nil || got.NextReminder != nil {
		t.Errorf("unexpected snapshot %+v", got)
	}
}

func TestStartBeatsImmediatelyAndStops(t *testing.T) {
	var beats atomic.Int32
	svc := NewService(Config{
		Probe:    func() Snapshot { beats.Add(1); return Snapshot{} },
		Interval: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	svc.Start(ctx) // second start is a no-op

	deadline := time.Now().Add(time.Second)
	for beats.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := beats.Load(); n != 1 {
		t.Fatalf("expected one beat on start, got %d", n)
	}
	svc.Stop()
	svc.Stop()
}

func TestReadMissing(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error")
	}
}
