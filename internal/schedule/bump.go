package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const discordAPIBase = "https://discord.com/api/v10"

// GuildResolver maps a channel to its owning guild.
type GuildResolver interface {
	GuildForChannel(channelID string) (string, error)
}

type BumpConfig struct {
	ChannelID     string
	ApplicationID string
	CommandName   string
	Interval      time.Duration
}

// Bump invokes another application's slash command on a fixed interval by
// posting a synthetic interaction. The command id is resolved once per guild
// and cached for the process lifetime; a failed resolution leaves the cache
// empty so the next tick retries.
type Bump struct {
	cfg      BumpConfig
	token    string
	resolver GuildResolver
	logger   *zap.Logger
	client   *http.Client
	baseURL  string

	mu         sync.Mutex
	commandIDs map[string]string
}

func NewBump(cfg BumpConfig, token string, resolver GuildResolver, logger *zap.Logger) *Bump {
	if cfg.CommandName == "" {
		cfg.CommandName = "bump"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Hour
	}
	return &Bump{
		cfg:        cfg,
		token:      token,
		resolver:   resolver,
		logger:     logger,
		client:     newHTTPClient(),
		baseURL:    discordAPIBase,
		commandIDs: make(map[string]string),
	}
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

func (b *Bump) Run(ctx context.Context, ready <-chan struct{}) {
	select {
	case <-ready:
	case <-ctx.Done():
		return
	}

	// First attempt fires at ready; the ticker only paces the repeats.
	if err := b.Trigger(ctx); err != nil {
		b.logger.Warn("bump attempt failed", zap.Error(err))
	}

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := b.Trigger(ctx); err != nil {
				b.logger.Warn("bump attempt failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Trigger performs a single bump attempt. Errors abort this attempt only; the
// next tick is the retry.
func (b *Bump) Trigger(ctx context.Context) error {
	if b.cfg.ChannelID == "" || b.cfg.ApplicationID == "" {
		return nil
	}

	guildID, err := b.resolver.GuildForChannel(b.cfg.ChannelID)
	if err != nil {
		return fmt.Errorf("resolve bump channel %s: %w", b.cfg.ChannelID, err)
	}

	commandID, err := b.commandID(ctx, guildID)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"type":           2,
		"application_id": b.cfg.ApplicationID,
		"guild_id":       guildID,
		"channel_id":     b.cfg.ChannelID,
		"data": map[string]any{
			"id":   commandID,
			"name": b.cfg.CommandName,
			"type": 1,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/interactions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+b.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("interaction rejected: status %d: %s", resp.StatusCode, string(detail))
	}

	b.logger.Info("bump command invoked", zap.String("guild_id", guildID), zap.String("channel_id", b.cfg.ChannelID))
	return nil
}

func (b *Bump) commandID(ctx context.Context, guildID string) (string, error) {
	b.mu.Lock()
	cached := b.commandIDs[guildID]
	b.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	url := fmt.Sprintf("%s/applications/%s/guilds/%s/commands", b.baseURL, b.cfg.ApplicationID, guildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bot "+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("command list fetch: status %d", resp.StatusCode)
	}

	var commands []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&commands); err != nil {
		return "", err
	}

	for _, cmd := range commands {
		if cmd.Name == b.cfg.CommandName {
			b.mu.Lock()
			b.commandIDs[guildID] = cmd.ID
			b.mu.Unlock()
			return cmd.ID, nil
		}
	}
	return "", fmt.Errorf("command %q not registered for application %s in guild %s", b.cfg.CommandName, b.cfg.ApplicationID, guildID)
}
