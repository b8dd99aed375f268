package action

import (
	"context"
	"fmt"
	"time"

	"bastion/internal/audit"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Executor applies decisions through the Discord API. Permission failures are
// logged and swallowed so one rejected action never halts the event loop.
type Executor struct {
	session *discordgo.Session
	logger  *zap.Logger
	audit   *audit.Logger
}

func NewExecutor(session *discordgo.Session, logger *zap.Logger, auditLogger *audit.Logger) *Executor {
	return &Executor{session: session, logger: logger, audit: auditLogger}
}

func (e *Executor) Execute(ctx context.Context, decision Decision) {
	switch decision.Kind {
	case Ban:
		e.executeBan(ctx, decision)
	case Alert:
		e.executeAlert(ctx, decision)
	case DeleteAndWarn:
		e.executeDeleteAndWarn(ctx, decision)
	}
}

func (e *Executor) executeBan(ctx context.Context, decision Decision) {
	if err := e.session.GuildBanCreateWithReason(decision.GuildID, decision.UserID, decision.Reason, 0); err != nil {
		e.logger.Warn("ban failed", zap.String("guild_id", decision.GuildID), zap.String("user_id", decision.UserID), zap.Error(err))
		e.audit.Log(ctx, audit.LevelWarn, decision.GuildID, decision.UserID, "action_failed", "ban: "+err.Error())
		return
	}
	e.audit.Log(ctx, audit.LevelCrit, decision.GuildID, decision.UserID, "nuke_ban", decision.Reason)
	e.notifyLogChannel(decision.GuildID, &discordgo.MessageEmbed{
		Title:       "Anti-Nuke Protection",
		Description: fmt.Sprintf("<@%s> has been banned.", decision.UserID),
		Color:       0xEF4444,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reason", Value: decision.Reason, Inline: false},
		},
	})
}

func (e *Executor) executeAlert(ctx context.Context, decision Decision) {
	e.audit.Log(ctx, audit.LevelWarn, decision.GuildID, decision.UserID, "raid_alert", decision.Reason)
	e.notifyLogChannel(decision.GuildID, &discordgo.MessageEmbed{
		Title:       "Possible Raid Detected",
		Description: decision.Reason,
		Color:       0xF59E0B,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}

func (e *Executor) executeDeleteAndWarn(ctx context.Context, decision Decision) {
	if err := e.session.ChannelMessageDelete(decision.ChannelID, decision.MessageID); err != nil {
		e.logger.Warn("message delete failed", zap.String("channel_id", decision.ChannelID), zap.Error(err))
	}
	if decision.Warning != "" {
		if _, err := e.session.ChannelMessageSend(decision.ChannelID, fmt.Sprintf("<@%s>, %s", decision.UserID, decision.Warning)); err != nil {
			e.logger.Warn("warning send failed", zap.String("channel_id", decision.ChannelID), zap.Error(err))
		}
	}
	if decision.Timeout > 0 {
		until := time.Now().Add(decision.Timeout)
		if err := e.session.GuildMemberTimeout(decision.GuildID, decision.UserID, &until); err != nil {
			// Deletion and warning already happened; a denied timeout is non-fatal.
			e.logger.Warn("timeout failed", zap.String("guild_id", decision.GuildID), zap.String("user_id", decision.UserID), zap.Error(err))
		}
	}
	e.audit.Log(ctx, audit.LevelWarn, decision.GuildID, decision.UserID, "spam_action", decision.Reason)
}

// notifyLogChannel posts to the guild's mod-log channel, falling back to one
// named "logs". Guilds without either are skipped.
func (e *Executor) notifyLogChannel(guildID string, embed *discordgo.MessageEmbed) {
	channelID := e.logChannelID(guildID)
	if channelID == "" {
		return
	}
	if _, err := e.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		e.logger.Warn("log channel send failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (e *Executor) logChannelID(guildID string) string {
	guild, err := e.session.State.Guild(guildID)
	if err != nil || guild == nil {
		guild, _ = e.session.Guild(guildID)
	}
	if guild == nil {
		return ""
	}
	for _, name := range []string{"mod-log", "logs"} {
		for _, channel := range guild.Channels {
			if channel == nil || channel.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			if channel.Name == name {
				return channel.ID
			}
		}
	}
	return ""
}
