package antinuke

import (
	"fmt"
	"sync"
	"time"

	"bastion/internal/action"
	"bastion/internal/utils"
)

const (
	DefaultWindow    = 60 * time.Second
	DefaultThreshold = 2
)

// Module tracks channel deletions per acting administrator. The caller is
// responsible for attribution (audit log lookup) and the administrator check;
// this module only counts and decides.
type Module struct {
	mu        sync.Mutex
	windows   map[string]*utils.SlidingWindow
	window    time.Duration
	threshold int
}

func New(window time.Duration, threshold int) *Module {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Module{
		windows:   make(map[string]*utils.SlidingWindow),
		window:    window,
		threshold: threshold,
	}
}

// HandleDeletion records one channel deletion by actorID and returns a Ban
// decision once the threshold is reached. The actor's window is reset after a
// decision so stale counts cannot produce repeated bans.
func (m *Module) HandleDeletion(guildID, actorID string, now time.Time) action.Decision {
	window := m.getWindow(guildID + ":" + actorID)
	count := window.Add(now)
	if count < m.threshold {
		return action.Decision{}
	}
	window.Reset()

	return action.Decision{
		Kind:    action.Ban,
		GuildID: guildID,
		UserID:  actorID,
		Reason:  fmt.Sprintf("Anti-nuke: deleted %d+ channels within %s", m.threshold, m.window),
	}
}

func (m *Module) getWindow(key string) *utils.SlidingWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := m.windows[key]
	if window == nil {
		window = utils.NewSlidingWindow(m.window)
		m.windows[key] = window
	}
	return window
}
