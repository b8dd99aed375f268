package antiraid

import (
	"testing"
	"time"

	"bastion/internal/action"
)

func TestJoinBurstAlertsOnce(t *testing.T) {
	module := New(10*time.Second, 5)
	now := time.Now()

	for i := 0; i < 4; i++ {
		if decision := module.HandleJoin("g1", now.Add(time.Duration(i)*time.Second)); !decision.IsNone() {
			t.Fatalf("join %d should not trigger, got %+v", i+1, decision)
		}
	}
	decision := module.HandleJoin("g1", now.Add(5*time.Second))
	if decision.Kind != action.Alert {
		t.Fatalf("expected alert on 5th join, got %+v", decision)
	}

	// Counter resets after the alert: an immediate 6th join starts over.
	if decision := module.HandleJoin("g1", now.Add(6*time.Second)); !decision.IsNone() {
		t.Fatalf("expected no second alert without 5 new joins, got %+v", decision)
	}
}

func TestSlowJoinsNeverAlert(t *testing.T) {
	module := New(10*time.Second, 5)
	now := time.Now()

	for i := 0; i < 8; i++ {
		decision := module.HandleJoin("g1", now.Add(time.Duration(i)*11*time.Second))
		if !decision.IsNone() {
			t.Fatalf("spread-out joins should not trigger, got %+v", decision)
		}
	}
}

func TestGuildsAreIndependent(t *testing.T) {
	module := New(10*time.Second, 5)
	now := time.Now()

	for i := 0; i < 4; i++ {
		module.HandleJoin("g1", now)
	}
	if decision := module.HandleJoin("g2", now); !decision.IsNone() {
		t.Fatalf("join in another guild should not trigger, got %+v", decision)
	}
}
