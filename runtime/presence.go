package runtime

import (
	"chat-presence/contract"
	"chat-presence/domain"
	"chat-presence/domain/event"
	"context"
	"fmt"
	"log/slog"
)

// Presence wraps registry joins and leaves with notification policy:
// announcements fire only on first-device-joins and last-device-leaves
// transitions, which keeps reconnect storms and extra tabs silent.
type Presence struct {
	log      *slog.Logger
	registry contract.IRegistry
	router   *Router
	typing   contract.ITypingTracker
}

func NewPresence(log *slog.Logger, registry contract.IRegistry,
	router *Router, typing contract.ITypingTracker) *Presence {
	return &Presence{log: log, registry: registry, router: router, typing: typing}
}

// HandleJoin admits the connection into a room. On a genuine 0→1 presence
// transition it announces the join to the room (never to the joiner itself)
// and refreshes everyone's member list. A rejoin or an extra tab only gets
// the current roster back.
func (p *Presence) HandleJoin(ctx context.Context, connID string, room domain.RoomID) error {
	participant, ok := p.registry.ParticipantOf(connID)
	if !ok {
		return fmt.Errorf("join %q: unknown connection %s", room, connID)
	}

	out, err := p.registry.Join(connID, room)
	if err != nil {
		return err
	}

	if out.AlreadyPresent {
		p.sendRoster(ctx, connID, room)
		return nil
	}

	msg := domain.NewSystemMessage(room, fmt.Sprintf("%s joined the chat", participant.Name))
	if _, err := p.router.ToRoom(ctx, msg, connID); err != nil {
		p.log.Error("join announcement not persisted", "room", room, "error", err)
	}
	p.router.Publish(ctx, event.PresenceUpdate{Room: room, Members: p.registry.MembersOf(room)}, "")
	return nil
}

// HandleLeave removes the connection from a room, announcing the departure
// only when the participant's last connection left.
func (p *Presence) HandleLeave(ctx context.Context, connID string, room domain.RoomID) {
	participant, ok := p.registry.ParticipantOf(connID)
	if !ok {
		return
	}

	out := p.registry.Leave(connID, room)
	if !out.WasMember {
		return
	}
	p.afterDeparture(ctx, connID, participant, room, out.StillPresent)
}

// HandleDisconnect vacates every room the closing connection occupied.
// Registry idempotence makes it safe against explicit leaves racing with the
// transport close: the second path sees a silent no-op.
func (p *Presence) HandleDisconnect(ctx context.Context, connID string) {
	participant, ok := p.registry.ParticipantOf(connID)
	if !ok {
		return
	}

	for _, d := range p.registry.Disconnect(connID) {
		p.afterDeparture(ctx, connID, participant, d.Room, d.StillPresent)
	}
}

func (p *Presence) afterDeparture(ctx context.Context, connID string,
	participant domain.Participant, room domain.RoomID, stillPresent bool) {
	if !stillPresent {
		if p.typing.Clear(room, participant.ID) {
			p.router.Publish(ctx, event.TypingUpdate{Room: room, Typing: p.typing.Active(room)}, "")
		}
		msg := domain.NewSystemMessage(room, fmt.Sprintf("%s left the chat", participant.Name))
		if _, err := p.router.ToRoom(ctx, msg, connID); err != nil {
			p.log.Error("leave announcement not persisted", "room", room, "error", err)
		}
	}
	p.router.Publish(ctx, event.PresenceUpdate{Room: room, Members: p.registry.MembersOf(room)}, "")
}

// sendRoster delivers the current member list to a single connection.
func (p *Presence) sendRoster(ctx context.Context, connID string, room domain.RoomID) {
	sink, ok := p.registry.SinkOf(connID)
	if !ok {
		return
	}
	evt := event.PresenceUpdate{Room: room, Members: p.registry.MembersOf(room)}
	if err := sink.Consume(ctx, evt); err != nil {
		p.log.Warn("roster not delivered", "conn_id", connID, "error", err)
	}
}
