package antiraid

import (
	"fmt"
	"sync"
	"time"

	"bastion/internal/action"
	"bastion/internal/utils"
)

const (
	DefaultWindow    = 10 * time.Second
	DefaultThreshold = 5
)

// Module tracks member joins per guild. Joins are not attributable to a single
// bad actor, so a burst yields an Alert rather than a sanction.
type Module struct {
	mu        sync.Mutex
	counters  map[string]*utils.SlidingWindow
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
		counters:  make(map[string]*utils.SlidingWindow),
		window:    window,
		threshold: threshold,
	}
}

func (m *Module) HandleJoin(guildID string, now time.Time) action.Decision {
	counter := m.getCounter(guildID)
	count := counter.Add(now)
	if count < m.threshold {
		return action.Decision{}
	}
	counter.Reset()

	return action.Decision{
		Kind:    action.Alert,
		GuildID: guildID,
		Reason:  fmt.Sprintf("%d members joined within %s", count, m.window),
	}
}

func (m *Module) getCounter(guildID string) *utils.SlidingWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	counter := m.counters[guildID]
	if counter == nil {
		counter = utils.NewSlidingWindow(m.window)
		m.counters[guildID] = counter
	}
	return counter
}
