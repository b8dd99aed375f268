package storage

import (
	"context"
	"testing"
)

func TestGuildSettingRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()

	if _, ok, err := store.GetGuildSetting(ctx, "g1"); err != nil || ok {
		t.Fatalf("expected no setting, ok=%v err=%v", ok, err)
	}

	setting := GuildSetting{GuildID: "g1", AnnounceChannel: "c1", AnnounceMessage: ""}
	if err := store.UpsertGuildSetting(ctx, setting); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, ok, err := store.GetGuildSetting(ctx, "g1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.AnnounceChannel != "c1" || got.AnnounceMessage != "" {
		t.Fatalf("unexpected setting %+v", got)
	}

	setting.AnnounceMessage = "rise and shine"
	if err := store.UpsertGuildSetting(ctx, setting); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _, _ = store.GetGuildSetting(ctx, "g1")
	if got.AnnounceMessage != "rise and shine" {
		t.Fatalf("expected updated message, got %q", got.AnnounceMessage)
	}

	if err := store.RemoveGuildSetting(ctx, "g1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := store.GetGuildSetting(ctx, "g1"); ok {
		t.Fatalf("expected setting removed")
	}
}

func TestCustomCommandPersistsAcrossReopen(t *testing.T) {
	dbPath := t.TempDir() + "/bastion.db"

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	if err := store.SetCommand(ctx, "Foo", "bar"); err != nil {
		t.Fatalf("set command: %v", err)
	}
	store.Close()

	reopened, err := New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Migrate(); err != nil {
		t.Fatalf("migrate reopened: %v", err)
	}

	response, ok, err := reopened.GetCommand(ctx, "foo")
	if err != nil || !ok {
		t.Fatalf("get command: ok=%v err=%v", ok, err)
	}
	if response != "bar" {
		t.Fatalf("expected bar, got %q", response)
	}
}

func TestRemoveCommandReportsMissing(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	removed, err := store.RemoveCommand(ctx, "nope")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed {
		t.Fatalf("expected missing command")
	}

	_ = store.SetCommand(ctx, "greet", "hello")
	removed, err = store.RemoveCommand(ctx, "GREET")
	if err != nil || !removed {
		t.Fatalf("expected case-insensitive removal, removed=%v err=%v", removed, err)
	}

	names, err := store.ListCommands(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no commands, got %v", names)
	}
}
