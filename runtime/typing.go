package runtime

import (
	"chat-presence/domain"
	"sort"
	"sync"
	"time"
)

type typingEntry struct {
	name      string
	expiresAt time.Time
}

// TypingTracker holds the per-room set of participants currently typing.
// Entries are time-boxed: clients debounce their own stop events, and the
// sweeper expires anything they forgot. Nothing here is ever persisted.
type TypingTracker struct {
	mu    sync.Mutex
	ttl   time.Duration
	rooms map[domain.RoomID]map[string]typingEntry
}

func NewTypingTracker(ttl time.Duration) *TypingTracker {
	return &TypingTracker{
		ttl:   ttl,
		rooms: make(map[domain.RoomID]map[string]typingEntry),
	}
}

// Set records that a participant started or stopped typing and reports
// whether the room's typing set changed. A repeated "still typing" only
// refreshes the entry's deadline.
func (t *TypingTracker) Set(room domain.RoomID, p domain.Participant, isTyping bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isTyping {
		return t.remove(room, p.ID)
	}

	entries, ok := t.rooms[room]
	if !ok {
		entries = make(map[string]typingEntry)
		t.rooms[room] = entries
	}
	_, present := entries[p.ID]
	entries[p.ID] = typingEntry{name: p.Name, expiresAt: time.Now().Add(t.ttl)}
	return !present
}

// Clear defensively removes a departed participant so they never appear
// stuck as typing. Reports whether the set changed.
func (t *TypingTracker) Clear(room domain.RoomID, participantID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(room, participantID)
}

// Active returns the display names currently typing in a room, sorted.
func (t *TypingTracker) Active(room domain.RoomID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.rooms[room]
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// SweepExpired drops entries past their deadline and returns the rooms whose
// typing set changed, so the caller can rebroadcast.
func (t *TypingTracker) SweepExpired(now time.Time) []domain.RoomID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []domain.RoomID
	for room, entries := range t.rooms {
		before := len(entries)
		for id, e := range entries {
			if now.After(e.expiresAt) {
				delete(entries, id)
			}
		}
		if len(entries) != before {
			changed = append(changed, room)
		}
		if len(entries) == 0 {
			delete(t.rooms, room)
		}
	}
	return changed
}

func (t *TypingTracker) remove(room domain.RoomID, participantID string) bool {
	entries, ok := t.rooms[room]
	if !ok {
		return false
	}
	if _, present := entries[participantID]; !present {
		return false
	}
	delete(entries, participantID)
	if len(entries) == 0 {
		delete(t.rooms, room)
	}
	return true
}
