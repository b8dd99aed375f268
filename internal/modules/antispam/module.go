package antispam

import (
	"fmt"
	"time"

	"bastion/internal/action"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	DefaultMentionThreshold = 5
	DefaultRepeatThreshold  = 5
	DefaultLookback         = 10
	DefaultTimeout          = 10 * time.Minute
)

// HistoryFetcher supplies the channel's most recent messages, newest first.
// Production wraps the Discord message-history endpoint; tests inject a slice.
type HistoryFetcher interface {
	RecentMessages(channelID string, limit int) ([]*discordgo.Message, error)
}

// Module evaluates each message along two independent axes: mass mentions in a
// single message, and identical content repeated within the channel's recent
// history. Neither axis keeps state between messages; repeated-content is
// re-derived from the history query every time.
type Module struct {
	logger           *zap.Logger
	mentionThreshold int
	repeatThreshold  int
	lookback         int
	timeout          time.Duration
}

// Config overrides the module thresholds. Zero values keep the defaults.
type Config struct {
	MentionThreshold int
	RepeatThreshold  int
	Lookback         int
	Timeout          time.Duration
}

func New(cfg Config, logger *zap.Logger) *Module {
	if cfg.MentionThreshold <= 0 {
		cfg.MentionThreshold = DefaultMentionThreshold
	}
	if cfg.RepeatThreshold <= 0 {
		cfg.RepeatThreshold = DefaultRepeatThreshold
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Module{
		logger:           logger,
		mentionThreshold: cfg.MentionThreshold,
		repeatThreshold:  cfg.RepeatThreshold,
		lookback:         cfg.Lookback,
		timeout:          cfg.Timeout,
	}
}

func (m *Module) HandleMessage(msg *discordgo.Message, history HistoryFetcher) []action.Decision {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return nil
	}

	var decisions []action.Decision

	if len(msg.Mentions) >= m.mentionThreshold {
		decisions = append(decisions, action.Decision{
			Kind:      action.DeleteAndWarn,
			GuildID:   msg.GuildID,
			UserID:    msg.Author.ID,
			ChannelID: msg.ChannelID,
			MessageID: msg.ID,
			Reason:    fmt.Sprintf("mass mention: %d mentions in one message", len(msg.Mentions)),
			Warning:   "mass mentions are not allowed!",
			Timeout:   m.timeout,
		})
	}

	if msg.GuildID != "" && history != nil {
		if count := m.repeatCount(msg, history); count >= m.repeatThreshold {
			decisions = append(decisions, action.Decision{
				Kind:      action.DeleteAndWarn,
				GuildID:   msg.GuildID,
				UserID:    msg.Author.ID,
				ChannelID: msg.ChannelID,
				MessageID: msg.ID,
				Reason:    fmt.Sprintf("repeated content: %d identical messages in last %d", count, m.lookback),
				Warning:   "spam is not allowed!",
				Timeout:   m.timeout,
			})
		}
	}

	return decisions
}

// repeatCount counts messages in the lookback authored by the same user with
// text identical to msg, inclusive of msg itself when it appears in history.
func (m *Module) repeatCount(msg *discordgo.Message, history HistoryFetcher) int {
	recent, err := history.RecentMessages(msg.ChannelID, m.lookback)
	if err != nil {
		m.logger.Warn("message history fetch failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
		return 0
	}

	count := 0
	for _, candidate := range recent {
		if candidate == nil || candidate.Author == nil {
			continue
		}
		if candidate.Author.ID == msg.Author.ID && candidate.Content == msg.Content {
			count++
		}
	}
	return count
}
