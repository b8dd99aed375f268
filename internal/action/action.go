package action

import "time"

type Kind int

const (
	None Kind = iota
	Ban
	Alert
	DeleteAndWarn
)

// Decision is the outcome of a detector: pure data, no side effects until executed.
type Decision struct {
	Kind      Kind
	GuildID   string
	UserID    string
	ChannelID string
	MessageID string
	Reason    string
	Warning   string
	Timeout   time.Duration
}

func (d Decision) IsNone() bool {
	return d.Kind == None
}
