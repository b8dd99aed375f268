package analytics

import (
	"context"
	"testing"
	"time"

	"bastion/internal/storage"
)

func TestReportCountsByLevelAndEvent(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	ctx := context.Background()
	now := time.Now()
	entries := []storage.AuditLog{
		{GuildID: "g1", UserID: "u1", Level: "CRIT", Event: "nuke_ban", CreatedAt: now},
		{GuildID: "g1", UserID: "u2", Level: "WARN", Event: "raid_alert", CreatedAt: now},
		{GuildID: "g1", UserID: "u3", Level: "WARN", Event: "spam_action", CreatedAt: now},
		{GuildID: "g2", UserID: "u4", Level: "CRIT", Event: "nuke_ban", CreatedAt: now},
		{GuildID: "g1", UserID: "u5", Level: "INFO", Event: "spam_action", CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, entry := range entries {
		if err := store.AddAuditLog(ctx, entry); err != nil {
			t.Fatalf("AddAuditLog: %v", err)
		}
	}

	report, err := New(store).Report(ctx, "g1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Total != 3 {
		t.Fatalf("Total = %d, want 3", report.Total)
	}
	if report.ByLevel["WARN"] != 2 || report.ByLevel["CRIT"] != 1 {
		t.Fatalf("ByLevel = %v", report.ByLevel)
	}
	if report.ByEvent["raid_alert"] != 1 || report.ByEvent["spam_action"] != 1 {
		t.Fatalf("ByEvent = %v", report.ByEvent)
	}
}
