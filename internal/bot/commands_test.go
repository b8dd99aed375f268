package bot

import (
	"testing"

	"bastion/internal/config"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New: %v", err)
	}
	err = session.State.GuildAdd(&discordgo.Guild{
		ID: "g1",
		Channels: []*discordgo.Channel{
			{ID: "100", GuildID: "g1", Name: "general", Type: discordgo.ChannelTypeGuildText},
			{ID: "101", GuildID: "g1", Name: "mod-log", Type: discordgo.ChannelTypeGuildText},
			{ID: "102", GuildID: "g1", Name: "Lounge Voice", Type: discordgo.ChannelTypeGuildVoice},
		},
	})
	if err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
	return &Bot{
		cfg:     config.Config{CommandPrefix: "!"},
		logger:  zap.NewNop(),
		session: session,
	}
}

func TestResolveTextChannel(t *testing.T) {
	b := newTestBot(t)

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"mention", "<#100>", "100"},
		{"raw id", "101", "101"},
		{"exact name", "general", "100"},
		{"hash name", "#mod-log", "101"},
		{"partial case-insensitive", "MOD", "101"},
		{"unknown", "does-not-exist", ""},
		{"voice rejected", "Lounge Voice", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		channel := b.resolveTextChannel("g1", tc.input)
		got := ""
		if channel != nil {
			got = channel.ID
		}
		if got != tc.want {
			t.Errorf("%s: resolveTextChannel(%q) = %q, want %q", tc.name, tc.input, got, tc.want)
		}
	}
}

func TestResolveTextChannelWrongGuild(t *testing.T) {
	b := newTestBot(t)
	if channel := b.resolveTextChannel("g2", "100"); channel != nil {
		t.Fatalf("expected nil for channel from another guild, got %q", channel.ID)
	}
}

func TestSplitChannelPrefix(t *testing.T) {
	b := newTestBot(t)

	channel, message := b.splitChannelPrefix("g1", "#general Hello everyone!")
	if channel == nil || channel.ID != "100" {
		t.Fatalf("expected channel 100, got %v", channel)
	}
	if message != "Hello everyone!" {
		t.Fatalf("message = %q", message)
	}

	channel, message = b.splitChannelPrefix("g1", "Hello everyone!")
	if channel != nil {
		t.Fatalf("expected no channel, got %q", channel.ID)
	}
	if message != "Hello everyone!" {
		t.Fatalf("message = %q", message)
	}

	// Unresolvable hash word stays part of the message.
	channel, message = b.splitChannelPrefix("g1", "#nope rest of text")
	if channel != nil || message != "#nope rest of text" {
		t.Fatalf("got channel=%v message=%q", channel, message)
	}
}

func TestClearFetchSizes(t *testing.T) {
	cases := []struct {
		n    int
		want []int
	}{
		{1, []int{1}},
		{11, []int{11}},
		{100, []int{100}},
		// A full !clear 100 purges 101 messages across two fetches, so the
		// invoking message is included instead of displacing a target.
		{101, []int{100, 1}},
		{250, []int{100, 100, 50}},
		{0, nil},
	}
	for _, tc := range cases {
		got := clearFetchSizes(tc.n)
		if len(got) != len(tc.want) {
			t.Errorf("clearFetchSizes(%d) = %v, want %v", tc.n, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("clearFetchSizes(%d) = %v, want %v", tc.n, got, tc.want)
				break
			}
		}
	}
}

func TestRemainder(t *testing.T) {
	if got := remainder("text #general  two  spaced words", 2); got != "two  spaced words" {
		t.Fatalf("remainder = %q", got)
	}
	if got := remainder("text", 2); got != "" {
		t.Fatalf("remainder on short body = %q", got)
	}
}

func TestIsDigits(t *testing.T) {
	if !isDigits("123456789012345678") {
		t.Fatal("snowflake should be digits")
	}
	if isDigits("12a") || isDigits("") {
		t.Fatal("non-numeric input accepted")
	}
}
