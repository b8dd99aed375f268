package antinuke

import (
	"testing"
	"time"

	"bastion/internal/action"
)

func TestDeletionBurstTriggersBan(t *testing.T) {
	module := New(60*time.Second, 2)
	now := time.Now()

	if decision := module.HandleDeletion("g1", "admin1", now); !decision.IsNone() {
		t.Fatalf("first deletion should not trigger, got %+v", decision)
	}
	decision := module.HandleDeletion("g1", "admin1", now.Add(59*time.Second))
	if decision.Kind != action.Ban {
		t.Fatalf("expected ban on second deletion within window, got %+v", decision)
	}
	if decision.UserID != "admin1" || decision.GuildID != "g1" {
		t.Fatalf("decision targets wrong actor: %+v", decision)
	}
}

func TestDeletionOutsideWindowIgnored(t *testing.T) {
	module := New(60*time.Second, 2)
	now := time.Now()

	module.HandleDeletion("g1", "admin1", now)
	if decision := module.HandleDeletion("g1", "admin1", now.Add(61*time.Second)); !decision.IsNone() {
		t.Fatalf("deletions 61s apart should not trigger, got %+v", decision)
	}
}

func TestActorsDoNotShareWindows(t *testing.T) {
	module := New(60*time.Second, 2)
	now := time.Now()

	module.HandleDeletion("g1", "admin1", now)
	if decision := module.HandleDeletion("g1", "admin2", now); !decision.IsNone() {
		t.Fatalf("unrelated actor's single deletion should not trigger, got %+v", decision)
	}
}

func TestWindowResetsAfterBan(t *testing.T) {
	module := New(60*time.Second, 2)
	now := time.Now()

	module.HandleDeletion("g1", "admin1", now)
	if decision := module.HandleDeletion("g1", "admin1", now); decision.Kind != action.Ban {
		t.Fatalf("expected ban, got %+v", decision)
	}
	if decision := module.HandleDeletion("g1", "admin1", now.Add(time.Second)); !decision.IsNone() {
		t.Fatalf("window should be empty after a ban decision, got %+v", decision)
	}
}
