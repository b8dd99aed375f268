package schedule

import (
	"context"
	"sync"
	"time"

	"bastion/internal/storage"

	"go.uber.org/zap"
)

const DefaultAnnounceMessage = "Good morning everyone! Have a great day!"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Sender delivers an announcement to a channel. The bot layer resolves the
// channel and performs the actual send.
type Sender interface {
	Send(channelID, content string) error
}

// Daily fires the configured announcement once per guild per calendar day.
// Polling is hourly, so the trigger fires only when a tick lands within the
// first minute of the target hour; a tick delayed past that skips the day.
type Daily struct {
	store  *storage.Store
	sender Sender
	logger *zap.Logger
	clock  Clock
	hour   int

	mu    sync.Mutex
	fired map[string]struct{}
}

func NewDaily(store *storage.Store, sender Sender, logger *zap.Logger, hour int) *Daily {
	return &Daily{
		store:  store,
		sender: sender,
		logger: logger,
		clock:  realClock{},
		hour:   hour,
		fired:  make(map[string]struct{}),
	}
}

func (d *Daily) WithClock(clock Clock) {
	d.clock = clock
}

// Run blocks until ready is closed, aligns to the next hour boundary, then
// ticks hourly until ctx is cancelled.
func (d *Daily) Run(ctx context.Context, ready <-chan struct{}) {
	select {
	case <-ready:
	case <-ctx.Done():
		return
	}

	now := d.clock.Now()
	boundary := nextHourBoundary(now)
	select {
	case <-time.After(boundary.Sub(now)):
	case <-ctx.Done():
		return
	}

	d.Tick(ctx, d.clock.Now())

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Tick(ctx, d.clock.Now())
		case <-ctx.Done():
			return
		}
	}
}

// nextHourBoundary returns the next top-of-hour on now's wall clock. Truncate
// works on absolute time and would drift off the local hour in zones with a
// fractional UTC offset, so the boundary is built from the local fields.
func nextHourBoundary(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, now.Location())
}

func (d *Daily) Tick(ctx context.Context, now time.Time) {
	if now.Hour() == 0 {
		d.mu.Lock()
		d.fired = make(map[string]struct{})
		d.mu.Unlock()
	}

	if now.Hour() != d.hour || now.Minute() >= 1 {
		return
	}

	settings, err := d.store.ListGuildSettings(ctx)
	if err != nil {
		d.logger.Error("announcement settings load failed", zap.Error(err))
		return
	}

	for _, setting := range settings {
		if setting.AnnounceChannel == "" {
			continue
		}
		d.mu.Lock()
		_, done := d.fired[setting.GuildID]
		d.mu.Unlock()
		if done {
			continue
		}

		message := setting.AnnounceMessage
		if message == "" {
			message = DefaultAnnounceMessage
		}
		if err := d.sender.Send(setting.AnnounceChannel, "@everyone "+message); err != nil {
			d.logger.Warn("announcement send failed",
				zap.String("guild_id", setting.GuildID),
				zap.String("channel_id", setting.AnnounceChannel),
				zap.Error(err))
			continue
		}

		d.mu.Lock()
		d.fired[setting.GuildID] = struct{}{}
		d.mu.Unlock()
		d.logger.Info("announcement sent", zap.String("guild_id", setting.GuildID), zap.String("channel_id", setting.AnnounceChannel))
	}
}
