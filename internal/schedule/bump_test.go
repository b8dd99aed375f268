package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type staticResolver struct{ guildID string }

func (r staticResolver) GuildForChannel(channelID string) (string, error) {
	return r.guildID, nil
}

func newBumpFixture(t *testing.T, handler http.HandlerFunc) (*Bump, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	bump := NewBump(BumpConfig{ChannelID: "c1", ApplicationID: "app1"}, "token", staticResolver{guildID: "g1"}, zap.NewNop())
	bump.baseURL = server.URL
	bump.client = server.Client()
	return bump, server
}

func TestBumpResolvesAndInvokes(t *testing.T) {
	var listCalls, invokeCalls int
	var payload map[string]any

	bump, _ := newBumpFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/commands"):
			listCalls++
			if got := r.Header.Get("Authorization"); got != "Bot token" {
				t.Errorf("unexpected auth header %q", got)
			}
			_ = json.NewEncoder(w).Encode([]map[string]string{
				{"id": "111", "name": "other"},
				{"id": "222", "name": "bump"},
			})
		case strings.HasSuffix(r.URL.Path, "/interactions"):
			invokeCalls++
			_ = json.NewDecoder(r.Body).Decode(&payload)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	})

	if err := bump.Trigger(context.Background()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if listCalls != 1 || invokeCalls != 1 {
		t.Fatalf("expected one list and one invoke, got %d/%d", listCalls, invokeCalls)
	}
	data, _ := payload["data"].(map[string]any)
	if data["id"] != "222" || data["name"] != "bump" {
		t.Fatalf("unexpected interaction data %v", data)
	}

	// Second trigger uses the cached command id.
	if err := bump.Trigger(context.Background()); err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if listCalls != 1 || invokeCalls != 2 {
		t.Fatalf("expected cached command id, got %d list calls", listCalls)
	}
}

func TestBumpResolutionFailureLeavesCacheEmpty(t *testing.T) {
	var listCalls int
	fail := true

	bump, _ := newBumpFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/commands"):
			listCalls++
			if fail {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_ = json.NewEncoder(w).Encode([]map[string]string{{"id": "222", "name": "bump"}})
		case strings.HasSuffix(r.URL.Path, "/interactions"):
			w.WriteHeader(http.StatusNoContent)
		}
	})

	if err := bump.Trigger(context.Background()); err == nil {
		t.Fatalf("expected resolution failure")
	}

	// Next tick retries resolution and succeeds.
	fail = false
	if err := bump.Trigger(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if listCalls != 2 {
		t.Fatalf("expected resolution retried, got %d list calls", listCalls)
	}
}

func TestBumpNonSuccessInvokeReturnsError(t *testing.T) {
	bump, _ := newBumpFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/commands"):
			_ = json.NewEncoder(w).Encode([]map[string]string{{"id": "222", "name": "bump"}})
		case strings.HasSuffix(r.URL.Path, "/interactions"):
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	if err := bump.Trigger(context.Background()); err == nil {
		t.Fatalf("expected error on rejected interaction")
	}
}

func TestBumpRunFiresImmediatelyAtReady(t *testing.T) {
	fired := make(chan struct{}, 1)
	bump, _ := newBumpFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/commands"):
			_ = json.NewEncoder(w).Encode([]map[string]string{{"id": "222", "name": "bump"}})
		case strings.HasSuffix(r.URL.Path, "/interactions"):
			w.WriteHeader(http.StatusNoContent)
			select {
			case fired <- struct{}{}:
			default:
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	close(ready)
	go bump.Run(ctx, ready)

	// The default interval is 2h, so a prompt invocation must be the
	// at-ready attempt rather than a ticker tick.
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a bump attempt as soon as ready is signalled")
	}
}

func TestBumpUnconfiguredIsNoop(t *testing.T) {
	bump := NewBump(BumpConfig{}, "token", staticResolver{}, zap.NewNop())
	if err := bump.Trigger(context.Background()); err != nil {
		t.Fatalf("unconfigured bump must be a noop, got %v", err)
	}
}
