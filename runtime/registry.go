// Package runtime hosts the shared mutable state of the presence engine:
// the membership registry, the presence coordinator, the broadcast router
// and the typing tracker. All mutation goes through these types; nothing
// here is exposed for direct external modification.
package runtime

import (
	"chat-presence/contract"
	"chat-presence/domain"
	"chat-presence/errors"
	"log/slog"
	"sort"
	"sync"
)

// connState is the per-connection bookkeeping owned by the registry for the
// lifetime of the transport session.
type connState struct {
	participant domain.Participant
	sink        contract.EventSink

	mu    sync.Mutex
	rooms map[domain.RoomID]struct{}
}

// memberState relates one participant to one room with a reference count of
// that participant's live connections in the room. The count gates join/leave
// notifications: 0→1 announces a join, ≥1→0 announces a leave.
type memberState struct {
	participant domain.Participant
	refs        int
}

// roomState serializes all membership transitions of a single room behind its
// own mutex, so distinct rooms proceed fully in parallel.
type roomState struct {
	mu      sync.Mutex
	gone    bool
	conns   map[string]struct{}
	members map[string]*memberState
}

// Registry maps rooms to the set of present identities. A room entry exists
// if and only if at least one connection is joined to it; the last leave or
// disconnect removes the entry to bound memory.
type Registry struct {
	mu    sync.RWMutex
	log   *slog.Logger
	conns map[string]*connState
	rooms map[domain.RoomID]*roomState
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:   log,
		conns: make(map[string]*connState),
		rooms: make(map[domain.RoomID]*roomState),
	}
}

// Register binds an admitted connection to its verified participant and its
// delivery sink. It creates no room state.
func (r *Registry) Register(connID string, p domain.Participant, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &connState{
		participant: p,
		sink:        sink,
		rooms:       make(map[domain.RoomID]struct{}),
	}
}

// Join adds the connection to a room. Rejoining the same room on the same
// connection is a no-op reported as AlreadyPresent. The reference-count
// increment and the notification decision happen under the room lock, so two
// concurrent first joiners cannot both win the 0→1 transition.
func (r *Registry) Join(connID string, room domain.RoomID) (domain.JoinOutcome, error) {
	c := r.conn(connID)
	if c == nil {
		return domain.JoinOutcome{}, errors.ErrUnknownConnection
	}

	for {
		rs := r.getOrCreateRoom(room)
		rs.mu.Lock()
		if rs.gone {
			// Lost a race with the last leaver removing the entry.
			rs.mu.Unlock()
			continue
		}
		if _, joined := rs.conns[connID]; joined {
			rs.mu.Unlock()
			return domain.JoinOutcome{AlreadyPresent: true}, nil
		}
		rs.conns[connID] = struct{}{}
		m, ok := rs.members[c.participant.ID]
		if !ok {
			m = &memberState{participant: c.participant}
			rs.members[c.participant.ID] = m
		}
		m.refs++
		already := m.refs > 1
		rs.mu.Unlock()

		c.mu.Lock()
		c.rooms[room] = struct{}{}
		c.mu.Unlock()

		return domain.JoinOutcome{AlreadyPresent: already}, nil
	}
}

// Leave removes the connection from a room. Leaving a room the connection
// never joined is a silent no-op, because transport-level disconnects race
// with explicit leaves.
func (r *Registry) Leave(connID string, room domain.RoomID) domain.LeaveOutcome {
	c := r.conn(connID)
	if c == nil {
		return domain.LeaveOutcome{}
	}
	return r.leaveRoom(c, connID, room)
}

// Disconnect vacates every room the connection occupies, applying the same
// reference-counting rule as Leave. It is idempotent: a second call for the
// same connection returns nil.
func (r *Registry) Disconnect(connID string) []domain.Departure {
	r.mu.Lock()
	c := r.conns[connID]
	delete(r.conns, connID)
	r.mu.Unlock()
	if c == nil {
		return nil
	}

	c.mu.Lock()
	occupied := make([]domain.RoomID, 0, len(c.rooms))
	for room := range c.rooms {
		occupied = append(occupied, room)
	}
	c.mu.Unlock()
	sort.Slice(occupied, func(i, j int) bool { return occupied[i] < occupied[j] })

	var departures []domain.Departure
	for _, room := range occupied {
		out := r.leaveRoom(c, connID, room)
		if out.WasMember {
			departures = append(departures, domain.Departure{Room: room, StillPresent: out.StillPresent})
		}
	}
	return departures
}

func (r *Registry) leaveRoom(c *connState, connID string, room domain.RoomID) domain.LeaveOutcome {
	rs := r.lookupRoom(room)
	if rs == nil {
		return domain.LeaveOutcome{}
	}

	rs.mu.Lock()
	if _, joined := rs.conns[connID]; !joined {
		rs.mu.Unlock()
		return domain.LeaveOutcome{}
	}
	delete(rs.conns, connID)

	still := true
	pid := c.participant.ID
	if m, ok := rs.members[pid]; ok {
		m.refs--
		if m.refs < 0 {
			// Invariant breach: clamp in production, shout in the logs.
			r.log.Error("negative presence refcount clamped",
				"room", room, "participant", pid)
			m.refs = 0
		}
		if m.refs == 0 {
			delete(rs.members, pid)
			still = false
		}
	} else {
		r.log.Error("membership entry missing for joined connection",
			"room", room, "participant", pid)
		still = false
	}

	empty := len(rs.conns) == 0
	if empty {
		rs.gone = true
	}
	rs.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.rooms[room] == rs {
			delete(r.rooms, room)
		}
		r.mu.Unlock()
	}

	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()

	return domain.LeaveOutcome{WasMember: true, StillPresent: still}
}

// MembersOf returns the deduplicated presence list of a room: distinct
// participants, never connection counts. Sorted by display name for
// deterministic client rendering.
func (r *Registry) MembersOf(room domain.RoomID) []domain.Participant {
	rs := r.lookupRoom(room)
	if rs == nil {
		return nil
	}

	rs.mu.Lock()
	members := make([]domain.Participant, 0, len(rs.members))
	for _, m := range rs.members {
		members = append(members, m.participant)
	}
	rs.mu.Unlock()

	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].ID < members[j].ID
	})
	return members
}

// SubscribersOf returns the sinks of every connection currently joined to the
// room, except the excluded one. Connections that disconnected between the
// two lookups are skipped.
func (r *Registry) SubscribersOf(room domain.RoomID, excludingConn string) []contract.Subscriber {
	rs := r.lookupRoom(room)
	if rs == nil {
		return nil
	}

	rs.mu.Lock()
	connIDs := make([]string, 0, len(rs.conns))
	for id := range rs.conns {
		if id != excludingConn {
			connIDs = append(connIDs, id)
		}
	}
	rs.mu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := make([]contract.Subscriber, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := r.conns[id]; ok {
			subs = append(subs, contract.Subscriber{ConnID: id, Sink: c.sink})
		}
	}
	return subs
}

// SubscribersForParticipant returns the sinks of every live connection owned
// by the participant, across all rooms and devices. Used for private
// message delivery.
func (r *Registry) SubscribersForParticipant(participantID string) []contract.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var subs []contract.Subscriber
	for id, c := range r.conns {
		if c.participant.ID == participantID {
			subs = append(subs, contract.Subscriber{ConnID: id, Sink: c.sink})
		}
	}
	return subs
}

func (r *Registry) SinkOf(connID string) (contract.EventSink, bool) {
	c := r.conn(connID)
	if c == nil {
		return nil, false
	}
	return c.sink, true
}

func (r *Registry) ParticipantOf(connID string) (domain.Participant, bool) {
	c := r.conn(connID)
	if c == nil {
		return domain.Participant{}, false
	}
	return c.participant, true
}

// IsJoined reports whether the connection currently occupies the room.
func (r *Registry) IsJoined(connID string, room domain.RoomID) bool {
	c := r.conn(connID)
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

func (r *Registry) conn(connID string) *connState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[connID]
}

func (r *Registry) lookupRoom(room domain.RoomID) *roomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[room]
}

func (r *Registry) getOrCreateRoom(room domain.RoomID) *roomState {
	r.mu.RLock()
	rs := r.rooms[room]
	r.mu.RUnlock()
	if rs != nil {
		return rs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rs = r.rooms[room]; rs == nil {
		rs = &roomState{
			conns:   make(map[string]struct{}),
			members: make(map[string]*memberState),
		}
		r.rooms[room] = rs
	}
	return rs
}
