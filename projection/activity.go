// Package projection builds local read models from observed events.
// Handles counting and summarizing; it never emits events itself.
package projection

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-presence/domain"
	"chat-presence/domain/event"
)

// RoomSummary is the public view of one room's recent traffic.
type RoomSummary struct {
	Room         domain.RoomID `json:"room"`
	Messages     int           `json:"messages"`
	LastSender   string        `json:"last_sender,omitempty"`
	LastActivity time.Time     `json:"last_activity"`
}

type roomStats struct {
	messages     int
	lastSender   string
	lastActivity time.Time
}

// RoomActivity projects broadcast messages into a per-room activity
// summary, fed as a permanent sink so it observes every room message
// exactly once. It backs the room directory endpoint.
type RoomActivity struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomStats
}

func NewRoomActivity() *RoomActivity {
	return &RoomActivity{rooms: make(map[domain.RoomID]*roomStats)}
}

// Consume counts user-authored room messages. System announcements and
// private messages never reach the directory.
func (p *RoomActivity) Consume(_ context.Context, e event.Event) error {
	broadcast, ok := e.(event.MessageBroadcast)
	if !ok {
		return nil
	}
	msg := broadcast.Message
	if msg.Room == "" || msg.Type == domain.MessageSystem || msg.Type == domain.MessagePrivate {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	stats, ok := p.rooms[msg.Room]
	if !ok {
		stats = &roomStats{}
		p.rooms[msg.Room] = stats
	}
	stats.messages++
	stats.lastSender = msg.Sender
	if msg.CreatedAt.After(stats.lastActivity) {
		stats.lastActivity = msg.CreatedAt
	}
	return nil
}

// Summaries returns every known room, most recently active first.
func (p *RoomActivity) Summaries() []RoomSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(p.rooms))
	for room, stats := range p.rooms {
		summaries = append(summaries, RoomSummary{
			Room:         room,
			Messages:     stats.messages,
			LastSender:   stats.lastSender,
			LastActivity: stats.lastActivity,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastActivity.Equal(summaries[j].LastActivity) {
			return summaries[i].Room < summaries[j].Room
		}
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries
}
