package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"bastion/internal/action"
	"bastion/internal/analytics"
	"bastion/internal/audit"
	"bastion/internal/config"
	"bastion/internal/modules/antinuke"
	"bastion/internal/modules/antiraid"
	"bastion/internal/modules/antispam"
	"bastion/internal/schedule"
	"bastion/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	audit     *audit.Logger
	analytics *analytics.Service
	session   *discordgo.Session
	executor  *action.Executor
	antinuke  *antinuke.Module
	antiraid  *antiraid.Module
	antispam  *antispam.Module
	daily     *schedule.Daily
	bump      *schedule.Bump
	ready     chan struct{}
	readyOnce sync.Once
	startedAt time.Time
	cancel    context.CancelFunc
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger, analyticsService *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		audit:     auditLogger,
		analytics: analyticsService,
		session:   session,
		ready:     make(chan struct{}),
	}

	b.executor = action.NewExecutor(session, logger, auditLogger)
	b.antinuke = antinuke.New(time.Duration(cfg.Thresholds.NukeWindowSeconds)*time.Second, cfg.Thresholds.NukeDeletions)
	b.antiraid = antiraid.New(time.Duration(cfg.Thresholds.RaidWindowSeconds)*time.Second, cfg.Thresholds.RaidJoins)
	b.antispam = antispam.New(antispam.Config{
		MentionThreshold: cfg.Thresholds.MentionLimit,
		RepeatThreshold:  cfg.Thresholds.RepeatLimit,
		Lookback:         cfg.Thresholds.HistoryLookback,
		Timeout:          time.Duration(cfg.Thresholds.TimeoutMinutes) * time.Minute,
	}, logger)
	b.daily = schedule.NewDaily(store, sessionSender{session}, logger, cfg.Announce.Hour)
	b.bump = schedule.NewBump(schedule.BumpConfig{
		ChannelID:     cfg.Bump.ChannelID,
		ApplicationID: cfg.Bump.ApplicationID,
		CommandName:   cfg.Bump.CommandName,
		Interval:      time.Duration(cfg.Bump.IntervalHours) * time.Hour,
	}, cfg.DiscordToken, sessionResolver{session}, logger)

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onChannelDelete)

	if err := b.session.Open(); err != nil {
		return err
	}
	b.startedAt = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.daily.Run(ctx, b.ready)
	go b.bump.Run(ctx, b.ready)
	go b.runAuditCleanup(ctx)

	return nil
}

func (b *Bot) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", len(event.Guilds)))
	if err := session.UpdateGameStatus(0, "Protecting your server!"); err != nil {
		b.logger.Warn("presence update failed", zap.Error(err))
	}
	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *Bot) onChannelDelete(session *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil || event.Channel.GuildID == "" {
		return
	}
	guildID := event.Channel.GuildID

	actorID := b.resolveAuditActor(guildID, discordgo.AuditLogActionChannelDelete, event.Channel.ID)
	if actorID == "" || actorID == session.State.User.ID {
		return
	}
	// Only administrators can mass-delete channels; everyone else is
	// already stopped by Discord permissions.
	if !b.actorHasAdmin(guildID, actorID) {
		return
	}

	decision := b.antinuke.HandleDeletion(guildID, actorID, time.Now())
	if decision.IsNone() {
		b.logger.Debug("channel deletion recorded",
			zap.String("guild_id", guildID),
			zap.String("actor_id", actorID),
			zap.String("channel_id", event.Channel.ID))
		return
	}
	b.executor.Execute(context.Background(), decision)
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.GuildID == "" || event.User == nil {
		return
	}

	decision := b.antiraid.HandleJoin(event.GuildID, time.Now())
	if decision.IsNone() {
		return
	}
	b.executor.Execute(context.Background(), decision)
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}

	// A sanctioned message still goes through command dispatch; the delete
	// is fire-and-forget.
	decisions := b.antispam.HandleMessage(msg.Message, sessionHistory{session})
	for _, decision := range decisions {
		b.executor.Execute(context.Background(), decision)
	}

	b.handleCommand(msg)
}

// resolveAuditActor attributes a gateway event to the user who caused it by
// scanning the guild audit log for a fresh matching entry.
func (b *Bot) resolveAuditActor(guildID string, actionType discordgo.AuditLogAction, targetID string) string {
	logs, err := b.session.GuildAuditLog(guildID, "", "", int(actionType), 5)
	if err != nil || logs == nil {
		return ""
	}
	for _, entry := range logs.AuditLogEntries {
		if entry == nil {
			continue
		}
		if targetID != "" && entry.TargetID != targetID {
			continue
		}
		ts, err := discordgo.SnowflakeTimestamp(entry.ID)
		if err == nil && time.Since(ts) > 30*time.Second {
			continue
		}
		return entry.UserID
	}
	return ""
}

func (b *Bot) actorHasAdmin(guildID, userID string) bool {
	guild, err := b.session.State.Guild(guildID)
	if err != nil || guild == nil {
		guild, _ = b.session.Guild(guildID)
	}
	if guild == nil {
		return false
	}
	if guild.OwnerID == userID {
		return true
	}
	member := b.memberForUser(guildID, userID)
	return memberHasAdmin(guild, member)
}

func (b *Bot) memberForUser(guildID, userID string) *discordgo.Member {
	member, err := b.session.State.Member(guildID, userID)
	if err == nil && member != nil {
		return member
	}
	member, _ = b.session.GuildMember(guildID, userID)
	return member
}

func memberHasAdmin(guild *discordgo.Guild, member *discordgo.Member) bool {
	if guild == nil || member == nil {
		return false
	}
	perms := int64(0)
	for _, role := range guild.Roles {
		if role.ID == guild.ID {
			perms |= role.Permissions
			break
		}
	}
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
	}
	for _, roleID := range member.Roles {
		if role := roleMap[roleID]; role != nil {
			perms |= role.Permissions
		}
	}
	return perms&discordgo.PermissionAdministrator != 0
}

func (b *Bot) runAuditCleanup(ctx context.Context) {
	if b.cfg.RetentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.store.CleanupAuditLogs(ctx, b.cfg.RetentionDays); err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Warn("audit cleanup failed", zap.Error(err))
			}
		}
	}
}

// sessionSender adapts the gateway session to the announcement sender.
type sessionSender struct {
	session *discordgo.Session
}

func (s sessionSender) Send(channelID, content string) error {
	_, err := s.session.ChannelMessageSend(channelID, content)
	return err
}

// sessionResolver maps a channel to its guild for the bump scheduler, using
// the state cache before falling back to the REST lookup.
type sessionResolver struct {
	session *discordgo.Session
}

func (r sessionResolver) GuildForChannel(channelID string) (string, error) {
	channel, err := r.session.State.Channel(channelID)
	if err != nil || channel == nil {
		channel, err = r.session.Channel(channelID)
	}
	if err != nil {
		return "", err
	}
	if channel.GuildID == "" {
		return "", errors.New("channel is not in a guild")
	}
	return channel.GuildID, nil
}

// sessionHistory exposes recent channel messages for repeated-content checks.
type sessionHistory struct {
	session *discordgo.Session
}

func (h sessionHistory) RecentMessages(channelID string, limit int) ([]*discordgo.Message, error) {
	return h.session.ChannelMessages(channelID, limit, "", "", "")
}
