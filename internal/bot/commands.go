package bot

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"bastion/internal/schedule"

	"github.com/bwmarrin/discordgo"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const (
	colorBlue  = 0x3498DB
	colorGreen = 0x2ECC71
	colorGold  = 0xF1C40F
)

// reservedNames cannot be shadowed by custom commands.
var reservedNames = map[string]struct{}{
	"addcmd":  {},
	"delcmd":  {},
	"listcmd": {},
	"help":    {},
}

func (b *Bot) handleCommand(msg *discordgo.MessageCreate) {
	prefix := b.cfg.CommandPrefix
	if prefix == "" || !strings.HasPrefix(msg.Content, prefix) {
		return
	}
	body := strings.TrimPrefix(msg.Content, prefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]
	ctx := context.Background()

	// Custom commands take priority over everything except reserved names.
	if _, reserved := reservedNames[name]; !reserved {
		if response, ok, err := b.store.GetCommand(ctx, name); err == nil && ok {
			b.reply(msg.ChannelID, response)
			return
		}
	}

	switch name {
	case "ping":
		b.cmdPing(msg)
	case "info":
		b.cmdInfo(ctx, msg)
	case "avatar", "av", "pfp", "profilepic":
		b.cmdAvatar(msg, args)
	case "clear":
		b.cmdClear(msg, args)
	case "text", "send", "say":
		b.cmdText(msg, args, remainder(body, 2))
	case "addcmd", "addcommand":
		b.cmdAddCommand(ctx, msg, args, remainder(body, 2))
	case "delcmd", "deletecommand", "removecommand":
		b.cmdDeleteCommand(ctx, msg, args)
	case "listcmd", "listcommands":
		b.cmdListCommands(ctx, msg)
	case "setmorning", "morningchannel", "setmorningchannel":
		b.cmdSetMorning(ctx, msg, remainder(body, 1))
	case "removemorning", "removemorningchannel":
		b.cmdRemoveMorning(ctx, msg)
	case "setmorningmsg", "morningmessage", "custommorning":
		b.cmdSetMorningMessage(ctx, msg, remainder(body, 1))
	case "morninginfo":
		b.cmdMorningInfo(ctx, msg)
	case "testmorning", "morningtest":
		b.cmdTestMorning(ctx, msg)
	case "help":
		b.cmdHelp(msg)
	}
}

func (b *Bot) cmdPing(msg *discordgo.MessageCreate) {
	latency := b.session.HeartbeatLatency().Milliseconds()
	b.reply(msg.ChannelID, fmt.Sprintf("Pong! Latency: %dms", latency))
}

func (b *Bot) cmdInfo(ctx context.Context, msg *discordgo.MessageCreate) {
	cpuCount, _ := cpu.Counts(true)
	cpuPercent, _ := cpu.Percent(0, false)
	cpuValue := "n/a"
	if len(cpuPercent) > 0 {
		cpuValue = fmt.Sprintf("%.1f%%", cpuPercent[0])
	}
	memValue := "n/a"
	if vm, err := mem.VirtualMemory(); err == nil {
		memValue = fmt.Sprintf("%.1f%% (%d MB / %d MB)", vm.UsedPercent, vm.Used/1024/1024, vm.Total/1024/1024)
	}
	osValue := runtime.GOOS
	if hostInfo, err := host.Info(); err == nil {
		osValue = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
	}

	activity := "n/a"
	if msg.GuildID != "" && b.analytics != nil {
		if report, err := b.analytics.Report(ctx, msg.GuildID, time.Now().Add(-24*time.Hour)); err == nil {
			activity = fmt.Sprintf("%d events (%d critical, %d warnings)",
				report.Total, report.ByLevel["CRIT"], report.ByLevel["WARN"])
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Anti-Raid & Anti-Nuke Bot",
		Description: "Protecting your server from raids and nukes!",
		Color:       colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Features", Value: "• Anti-Raid Protection\n• Anti-Nuke Protection\n• Custom Commands\n• Spam Detection", Inline: false},
			{Name: "Prefix", Value: b.cfg.CommandPrefix, Inline: true},
			{Name: "Latency", Value: fmt.Sprintf("%dms", b.session.HeartbeatLatency().Milliseconds()), Inline: true},
			{Name: "Uptime", Value: time.Since(b.startedAt).Round(time.Second).String(), Inline: true},
			{Name: "Servers", Value: fmt.Sprintf("%d", len(b.session.State.Guilds)), Inline: true},
			{Name: "OS", Value: osValue, Inline: true},
			{Name: "CPU", Value: fmt.Sprintf("%s (%d cores)", cpuValue, cpuCount), Inline: true},
			{Name: "Memory", Value: memValue, Inline: true},
			{Name: "Go", Value: runtime.Version(), Inline: true},
			{Name: "Moderation (24h)", Value: activity, Inline: true},
		},
	}
	b.replyEmbed(msg.ChannelID, embed)
}

func (b *Bot) cmdAvatar(msg *discordgo.MessageCreate, args []string) {
	user := msg.Author
	if len(msg.Mentions) > 0 {
		user = msg.Mentions[0]
	} else if len(args) > 0 && isDigits(args[0]) {
		if fetched, err := b.session.User(args[0]); err == nil && fetched != nil {
			user = fetched
		}
	}

	b.replyEmbed(msg.ChannelID, &discordgo.MessageEmbed{
		Image: &discordgo.MessageEmbedImage{URL: user.AvatarURL("256")},
	})
}

func (b *Bot) cmdClear(msg *discordgo.MessageCreate, args []string) {
	if msg.GuildID == "" {
		return
	}
	if !b.invokerHasPermission(msg, discordgo.PermissionManageMessages) {
		b.reply(msg.ChannelID, "You don't have permission to use this command!")
		return
	}

	amount := 10
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed < 1 {
			b.reply(msg.ChannelID, "Invalid argument: amount must be a number")
			return
		}
		amount = parsed
	}
	if amount > 100 {
		amount = 100
	}

	// The invoking message counts too, so the purge covers amount+1,
	// fetched in API-sized batches.
	before := ""
	for _, fetch := range clearFetchSizes(amount + 1) {
		messages, err := b.session.ChannelMessages(msg.ChannelID, fetch, before, "", "")
		if err != nil {
			b.reply(msg.ChannelID, "Failed to fetch messages!")
			return
		}
		if len(messages) == 0 {
			break
		}
		ids := make([]string, 0, len(messages))
		for _, message := range messages {
			if message != nil {
				ids = append(ids, message.ID)
			}
		}
		before = ids[len(ids)-1]

		// Bulk delete requires at least two ids.
		if len(ids) == 1 {
			err = b.session.ChannelMessageDelete(msg.ChannelID, ids[0])
		} else {
			err = b.session.ChannelMessagesBulkDelete(msg.ChannelID, ids)
		}
		if err != nil {
			b.reply(msg.ChannelID, "I don't have permission to delete messages!")
			return
		}
		if len(messages) < fetch {
			break
		}
	}
	b.reply(msg.ChannelID, fmt.Sprintf("Cleared %d messages!", amount))
}

func (b *Bot) cmdText(msg *discordgo.MessageCreate, args []string, message string) {
	if msg.GuildID == "" {
		return
	}
	if !b.invokerHasPermission(msg, discordgo.PermissionAdministrator) {
		b.reply(msg.ChannelID, "You don't have permission to use this command!")
		return
	}
	if len(args) == 0 {
		b.reply(msg.ChannelID, "Usage: `"+b.cfg.CommandPrefix+"text <channel> <message>`")
		return
	}

	channel := b.resolveTextChannel(msg.GuildID, args[0])
	if channel == nil {
		b.reply(msg.ChannelID, "Channel not found! Please mention a channel (e.g., `"+b.cfg.CommandPrefix+"text #general Your message`) or use the channel name.")
		return
	}
	if message == "" {
		b.reply(msg.ChannelID, "Please provide a message! Usage: `"+b.cfg.CommandPrefix+"text <channel> <message>`")
		return
	}

	if _, err := b.session.ChannelMessageSend(channel.ID, message); err != nil {
		b.reply(msg.ChannelID, fmt.Sprintf("I don't have permission to send messages in <#%s>!", channel.ID))
		return
	}
	b.reply(msg.ChannelID, fmt.Sprintf("Message sent to <#%s>!", channel.ID))
}

func (b *Bot) cmdAddCommand(ctx context.Context, msg *discordgo.MessageCreate, args []string, response string) {
	if !b.invokerHasPermission(msg, discordgo.PermissionAdministrator) {
		b.reply(msg.ChannelID, "You don't have permission to use this command!")
		return
	}
	if len(args) == 0 || response == "" {
		b.reply(msg.ChannelID, "Usage: `"+b.cfg.CommandPrefix+"addcmd <name> <response>`")
		return
	}
	name := strings.ToLower(args[0])
	if _, reserved := reservedNames[name]; reserved {
		b.reply(msg.ChannelID, "This command name is reserved!")
		return
	}

	if err := b.store.SetCommand(ctx, name, response); err != nil {
		b.logger.Warn("custom command save failed", zap.String("name", name), zap.Error(err))
		b.reply(msg.ChannelID, "Failed to save the command, try again later.")
		return
	}
	b.reply(msg.ChannelID, fmt.Sprintf("Custom command `%s%s` has been added!", b.cfg.CommandPrefix, name))
}

func (b *Bot) cmdDeleteCommand(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	if !b.invokerHasPermission(msg, discordgo.PermissionAdministrator) {
		b.reply(msg.ChannelID, "You don't have permission to use this command!")
		return
	}
	if len(args) == 0 {
		b.reply(msg.ChannelID, "Usage: `"+b.cfg.CommandPrefix+"delcmd <name>`")
		return
	}
	name := strings.ToLower(args[0])

	removed, err := b.store.RemoveCommand(ctx, name)
	if err != nil {
		b.logger.Warn("custom command delete failed", zap.String("name", name), zap.Error(err))
		return
	}
	if !removed {
		b.reply(msg.ChannelID, fmt.Sprintf("Command `%s%s` not found!", b.cfg.CommandPrefix, name))
		return
	}
	b.reply(msg.ChannelID, fmt.Sprintf("Custom command `%s%s` has been deleted!", b.cfg.CommandPrefix, name))
}

func (b *Bot) cmdListCommands(ctx context.Context, msg *discordgo.MessageCreate) {
	names, err := b.store.ListCommands(ctx)
	if err != nil {
		b.logger.Warn("custom command list failed", zap.Error(err))
		return
	}
	if len(names) == 0 {
		b.reply(msg.ChannelID, "No custom commands have been added yet!")
		return
	}

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, "`"+b.cfg.CommandPrefix+name+"`")
	}
	b.replyEmbed(msg.ChannelID, &discordgo.MessageEmbed{
		Title:       "Custom Commands",
		Description: strings.Join(lines, "\n"),
		Color:       colorBlue,
	})
}

func (b *Bot) cmdSetMorning(ctx context.Context, msg *discordgo.MessageCreate, input string) {
	if msg.GuildID == "" {
		return
	}
	if !b.invokerHasPermission(msg, discordgo.PermissionAdministrator) {
		b.reply(msg.ChannelID, "You don't have permission to use this command!")
		return
	}

	var channel *discordgo.Channel
	if input == "" {
		channel, _ = b.session.State.Channel(msg.ChannelID)
		if channel == nil {
			channel, _ = b.session.Channel(msg.ChannelID)
		}
	} else {
		if len(input) > 50 || strings.Contains(input, "\n") || strings.Contains(input, "@") {
			b.reply(msg.ChannelID, "It looks like you're trying to set a morning message!\n"+
				"Use `"+b.cfg.CommandPrefix+"setmorningmsg <your message>` to set the message.\n"+
				"Use `"+b.cfg.CommandPrefix+"setmorning #channel` to set the channel.")
			return
		}
		channel = b.resolveTextChannel(msg.GuildID, input)
	}
	if channel == nil {
		b.reply(msg.ChannelID, "Channel not found! Please mention a channel (e.g., `"+b.cfg.CommandPrefix+"setmorning #general`) or use the channel name.")
		return
	}

	setting, _, err := b.store.GetGuildSetting(ctx, msg.GuildID)
	if err != nil {
		b.logger.Warn("guild setting load failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return
	}
	setting.GuildID = msg.GuildID
	setting.AnnounceChannel = channel.ID
	if err := b.store.UpsertGuildSetting(ctx, setting); err != nil {
		b.logger.Warn("guild setting save failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return
	}
	b.reply(msg.ChannelID, fmt.Sprintf("Morning messages will be sent to <#%s>!", channel.ID))
}

func (b *Bot) cmdRemoveMorning(ctx context.Context, msg *discordgo.MessageCreate) {
	if msg.GuildID == "" {
		return
	}
	if !b.invokerHasPermission(msg, discordgo.PermissionAdministrator) {
		b.reply(msg.ChannelID, "You don't have permission to use this command!")
		return
	}

	_, ok, err := b.store.GetGuildSetting(ctx, msg.GuildID)
	if err != nil {
		b.logger.Warn("guild setting load failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return
	}
	if !ok {
		b.reply(msg.ChannelID, "Morning messages are not set for this server!")
		return
	}
	if err := b.store.RemoveGuildSetting(ctx, msg.GuildID); err != nil {
		b.logger.Warn("guild setting remove failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return
	}
	b.reply(msg.ChannelID, "Morning messages have been disabled for this server!")
}

func (b *Bot) cmdSetMorningMessage(ctx context.Context, msg *discordgo.MessageCreate, input string) {
	if msg.GuildID == "" {
		return
	}
	if !b.invokerHasPermission(msg, discordgo.PermissionAdministrator) {
		b.reply(msg.ChannelID, "You don't have permission to use this command!")
		return
	}

	setting, ok, err := b.store.GetGuildSetting(ctx, msg.GuildID)
	if err != nil {
		b.logger.Warn("guild setting load failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return
	}

	if strings.TrimSpace(input) == "" {
		if !ok || setting.AnnounceMessage == "" {
			b.reply(msg.ChannelID, "No custom message was set!")
			return
		}
		setting.AnnounceMessage = ""
		if err := b.store.UpsertGuildSetting(ctx, setting); err != nil {
			b.logger.Warn("guild setting save failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
			return
		}
		b.reply(msg.ChannelID, "Morning message reset to default!")
		return
	}

	// An optional leading channel reference routes the message elsewhere.
	channel, message := b.splitChannelPrefix(msg.GuildID, strings.TrimSpace(input))
	if message == "" {
		b.reply(msg.ChannelID, "Please provide a message! Usage: `"+b.cfg.CommandPrefix+"setmorningmsg [channel] <message>`")
		return
	}

	setting.GuildID = msg.GuildID
	if channel != nil {
		setting.AnnounceChannel = channel.ID
	} else if setting.AnnounceChannel == "" {
		setting.AnnounceChannel = msg.ChannelID
	}
	setting.AnnounceMessage = message
	if err := b.store.UpsertGuildSetting(ctx, setting); err != nil {
		b.logger.Warn("guild setting save failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return
	}
	b.reply(msg.ChannelID, fmt.Sprintf("Custom morning message set!\n**Preview:** %s\n\n**Channel:** <#%s>", message, setting.AnnounceChannel))
}

func (b *Bot) cmdMorningInfo(ctx context.Context, msg *discordgo.MessageCreate) {
	if msg.GuildID == "" {
		return
	}
	setting, ok, err := b.store.GetGuildSetting(ctx, msg.GuildID)
	if err != nil {
		b.logger.Warn("guild setting load failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return
	}
	if !ok || setting.AnnounceChannel == "" {
		b.reply(msg.ChannelID, "Morning messages are not configured for this server!\n"+
			"Use `"+b.cfg.CommandPrefix+"setmorning #channel` to set the channel first.")
		return
	}

	messageValue := "Using default message"
	if setting.AnnounceMessage != "" {
		messageValue = setting.AnnounceMessage
	}
	b.replyEmbed(msg.ChannelID, &discordgo.MessageEmbed{
		Title: "Morning Message Settings",
		Color: colorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Channel", Value: "<#" + setting.AnnounceChannel + ">", Inline: false},
			{Name: "Custom Message", Value: messageValue, Inline: false},
		},
	})
}

func (b *Bot) cmdTestMorning(ctx context.Context, msg *discordgo.MessageCreate) {
	if msg.GuildID == "" {
		return
	}
	if !b.invokerHasPermission(msg, discordgo.PermissionAdministrator) {
		b.reply(msg.ChannelID, "You don't have permission to use this command!")
		return
	}

	setting, ok, err := b.store.GetGuildSetting(ctx, msg.GuildID)
	if err != nil {
		b.logger.Warn("guild setting load failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return
	}
	if !ok || setting.AnnounceChannel == "" {
		b.reply(msg.ChannelID, "Morning messages are not configured for this server!\n"+
			"Use `"+b.cfg.CommandPrefix+"setmorning #channel` to set the channel first.")
		return
	}

	message := setting.AnnounceMessage
	if message == "" {
		message = schedule.DefaultAnnounceMessage
	}
	if _, err := b.session.ChannelMessageSend(setting.AnnounceChannel, "@everyone "+message); err != nil {
		b.reply(msg.ChannelID, "I don't have permission to send messages in that channel!")
		return
	}
	b.reply(msg.ChannelID, fmt.Sprintf("Test morning message sent to <#%s>!", setting.AnnounceChannel))
}

func (b *Bot) cmdHelp(msg *discordgo.MessageCreate) {
	prefix := b.cfg.CommandPrefix
	b.replyEmbed(msg.ChannelID, &discordgo.MessageEmbed{
		Title: "Commands",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Utility", Value: fmt.Sprintf("`%sping` `%sinfo` `%savatar [user]` `%sclear [amount]` `%stext <channel> <message>`", prefix, prefix, prefix, prefix, prefix), Inline: false},
			{Name: "Custom Commands", Value: fmt.Sprintf("`%saddcmd <name> <response>` `%sdelcmd <name>` `%slistcmd`", prefix, prefix, prefix), Inline: false},
			{Name: "Morning Messages", Value: fmt.Sprintf("`%ssetmorning [#channel]` `%ssetmorningmsg [channel] <message>` `%smorninginfo` `%stestmorning` `%sremovemorning`", prefix, prefix, prefix, prefix, prefix), Inline: false},
		},
	})
}

// splitChannelPrefix peels an optional leading channel reference off input and
// returns the channel (nil when absent) and the remaining message text.
func (b *Bot) splitChannelPrefix(guildID, input string) (*discordgo.Channel, string) {
	parts := strings.SplitN(input, " ", 2)
	if len(parts) < 2 {
		return nil, input
	}
	first := parts[0]
	if strings.HasPrefix(first, "<#") || strings.HasPrefix(first, "#") {
		if channel := b.resolveTextChannel(guildID, first); channel != nil {
			return channel, strings.TrimSpace(parts[1])
		}
	}
	return nil, input
}

// resolveTextChannel accepts a mention, a raw ID, an exact name, or a partial
// case-insensitive name and returns a text channel in the guild, or nil.
func (b *Bot) resolveTextChannel(guildID, input string) *discordgo.Channel {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "<#") && strings.HasSuffix(input, ">") {
		input = input[2 : len(input)-1]
	}
	input = strings.TrimPrefix(input, "#")
	if input == "" {
		return nil
	}

	if isDigits(input) {
		channel, err := b.session.State.Channel(input)
		if err != nil || channel == nil {
			channel, _ = b.session.Channel(input)
		}
		if channel != nil && channel.GuildID == guildID && isTextChannel(channel) {
			return channel
		}
		return nil
	}

	guild, err := b.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return nil
	}
	for _, channel := range guild.Channels {
		if channel != nil && isTextChannel(channel) && channel.Name == input {
			return channel
		}
	}
	lower := strings.ToLower(input)
	for _, channel := range guild.Channels {
		if channel != nil && isTextChannel(channel) && strings.Contains(strings.ToLower(channel.Name), lower) {
			return channel
		}
	}
	return nil
}

func isTextChannel(channel *discordgo.Channel) bool {
	return channel.Type == discordgo.ChannelTypeGuildText || channel.Type == discordgo.ChannelTypeGuildNews
}

func (b *Bot) invokerHasPermission(msg *discordgo.MessageCreate, perm int64) bool {
	perms, err := b.session.State.UserChannelPermissions(msg.Author.ID, msg.ChannelID)
	if err != nil {
		perms, err = b.session.UserChannelPermissions(msg.Author.ID, msg.ChannelID)
	}
	if err != nil {
		return false
	}
	return perms&(perm|discordgo.PermissionAdministrator) != 0
}

func (b *Bot) reply(channelID, content string) {
	if _, err := b.session.ChannelMessageSend(channelID, content); err != nil {
		b.logger.Warn("reply failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (b *Bot) replyEmbed(channelID string, embed *discordgo.MessageEmbed) {
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.logger.Warn("reply failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// clearFetchSizes splits a purge of n messages into history fetches that fit
// the 100-message API limit.
func clearFetchSizes(n int) []int {
	var sizes []int
	for n > 0 {
		size := n
		if size > 100 {
			size = 100
		}
		sizes = append(sizes, size)
		n -= size
	}
	return sizes
}

// remainder strips the first n whitespace-separated tokens from body and
// returns the rest with surrounding space trimmed, preserving inner spacing.
func remainder(body string, n int) string {
	for i := 0; i < n; i++ {
		body = strings.TrimLeft(body, " \t")
		idx := strings.IndexAny(body, " \t")
		if idx < 0 {
			return ""
		}
		body = body[idx:]
	}
	return strings.TrimSpace(body)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
