package trigger

import (
	"testing"
	"time"

	"github.com/pmorrell/minder/internal/model"
)

var now = time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

func TestNextFireTime(t *testing.T) {
	at, ok, err := NextFire(model.TriggerTime, `{"at": "2026-04-01T09:00:00Z"}`, now)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	if !ok {
		t.Fatal("expected fire time")
	}
	if want := time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC); !at.Equal(want) {
		t.Errorf("got %v, want %v", at, want)
	}
}

func TestNextFireTimeAliases(t *testing.T) {
	for _, cfg := range []string{
		`{"scheduledAt": "2026-04-01T09:00:00Z"}`,
		`{"triggerAt": "2026-04-01T09:00:00Z"}`,
	} {
		_, ok, err := NextFire(model.TriggerTime, cfg, now)
		if err != nil {
			t.Errorf("NextFire(%s): %v", cfg, err)
		}
		if !ok {
			t.Errorf("NextFire(%s): expected fire time", cfg)
		}
	}
}

func TestNextFireTimeMissingInstant(t *testing.T) {
	if _, _, err := NextFire(model.TriggerTime, `{}`, now); err == nil {
		t.Error("expected error for time trigger without instant")
	}
}

func TestNextFireRecurringDefaultsToNineAM(t *testing.T) {
	at, ok, err := NextFire(model.TriggerRecurring, `{}`, now)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	if !ok {
		t.Fatal("expected fire time")
	}
	// 14:30 is past 09:00, so the default daily schedule fires tomorrow.
	if want := time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC); !at.Equal(want) {
		t.Errorf("got %v, want %v", at, want)
	}
}

func TestNextFireRecurringWithRule(t *testing.T) {
	cfg := `{"time": "18:00", "rrule": "FREQ=WEEKLY;BYDAY=FR"}`
	at, ok, err := NextFire(model.TriggerRecurring, cfg, now)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	if !ok {
		t.Fatal("expected fire time")
	}
	if at.Weekday() != time.Friday {
		t.Errorf("got weekday %v, want Friday", at.Weekday())
	}
	if at.Hour() != 18 {
		t.Errorf("got hour %d, want 18", at.Hour())
	}
	if !at.After(now) {
		t.Errorf("fire time %v is not after now", at)
	}
}

func TestNextFireRecurringBadRule(t *testing.T) {
	if _, _, err := NextFire(model.TriggerRecurring, `{"rrule": "FREQ=NEVER"}`, now); err == nil {
		t.Error("expected error for unparseable rrule")
	}
}

func TestNextFireEvent(t *testing.T) {
	// Without checkAfter an event trigger is not time-driven.
	_, ok, err := NextFire(model.TriggerEvent, `{}`, now)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	if ok {
		t.Error("event trigger without checkAfter should not schedule")
	}

	at, ok, err := NextFire(model.TriggerEvent, `{"checkAfter": "2026-03-15T00:00:00Z"}`, now)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	if !ok {
		t.Fatal("expected fire time")
	}
	if want := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC); !at.Equal(want) {
		t.Errorf("got %v, want %v", at, want)
	}
}

func TestNextFireLocation(t *testing.T) {
	_, ok, err := NextFire(model.TriggerLocation, `{"place": "office"}`, now)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	if ok {
		t.Error("location trigger should never be time-driven")
	}
}

func TestNextFireMalformedConfig(t *testing.T) {
	if _, _, err := NextFire(model.TriggerTime, `{not json`, now); err == nil {
		t.Error("expected error for malformed config")
	}
	if _, _, err := NextFire("unknown", `{}`, now); err == nil {
		t.Error("expected error for unknown trigger type")
	}
}
