package runtime

import (
	"chat-presence/contract"
	"chat-presence/domain"
	"chat-presence/domain/event"
	"context"
	"log/slog"
	"time"
)

// Router fans events out to room subscribers. Room messages are appended to
// the durable log collaborator before in-memory delivery; a log failure is
// reported to the caller but never blocks or rolls back the broadcast.
//
// Delivery to each sink is independent and bounded by sinkTimeout. A
// connection that cannot accept an event is evicted as if it disconnected,
// so one slow consumer never stalls a room.
type Router struct {
	log            *slog.Logger
	registry       contract.IRegistry
	messages       contract.IMessageLog
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
	evict          func(connID string)
}

func NewRouter(log *slog.Logger, registry contract.IRegistry,
	messages contract.IMessageLog, sinkTimeout time.Duration) *Router {
	return &Router{
		log:         log,
		registry:    registry,
		messages:    messages,
		sinkTimeout: sinkTimeout,
	}
}

// Add registers permanent in-process sinks (search index, projections)
// that observe every room message regardless of membership.
func (r *Router) Add(sinks ...contract.EventSink) {
	r.permanentSinks = append(r.permanentSinks, sinks...)
}

// OnEvict installs the callback used to drop a connection whose outbound
// queue overflowed. The gateway closes the transport; the resulting
// disconnect handles registry cleanup.
func (r *Router) OnEvict(fn func(connID string)) {
	r.evict = fn
}

// ToRoom delivers a message to every connection joined to its room, except
// the excluded one. The returned error reports persistence failure only;
// in-memory delivery already happened by the time it is returned.
func (r *Router) ToRoom(ctx context.Context, msg domain.Message, excludingConn string) (int, error) {
	evt := event.MessageBroadcast{Message: msg}

	var persistErr error
	if msg.Type != domain.MessagePrivate {
		if persistErr = r.messages.Append(msg); persistErr != nil {
			r.log.Error("message not persisted, broadcasting anyway",
				"room", msg.Room, "message_id", msg.ID, "error", persistErr)
		}
		for _, sink := range r.permanentSinks {
			if err := sink.Consume(ctx, evt); err != nil {
				r.log.Warn("permanent sink rejected event", "error", err)
			}
		}
	}

	return r.Publish(ctx, evt, excludingConn), persistErr
}

// ToParticipant delivers a message to every live connection of one
// participant, across rooms and devices. Nothing is queued for offline
// delivery: it reports false when the participant has no live connection.
func (r *Router) ToParticipant(ctx context.Context, participantID string, msg domain.Message) bool {
	subs := r.registry.SubscribersForParticipant(participantID)
	if len(subs) == 0 {
		return false
	}
	evt := event.MessageBroadcast{Message: msg}
	for _, sub := range subs {
		r.deliver(ctx, sub, evt)
	}
	return true
}

// Publish pushes an event to every subscriber of its room without touching
// the message log. Used for presence, typing and reaction updates.
func (r *Router) Publish(ctx context.Context, evt event.Event, excludingConn string) int {
	delivered := 0
	for _, sub := range r.registry.SubscribersOf(evt.RoomID(), excludingConn) {
		if r.deliver(ctx, sub, evt) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) deliver(ctx context.Context, sub contract.Subscriber, evt event.Event) bool {
	deliverCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
	defer cancel()

	if err := sub.Sink.Consume(deliverCtx, evt); err != nil {
		r.log.Warn("dropping connection after failed delivery",
			"conn_id", sub.ConnID, "event", evt.Name(), "error", err)
		if r.evict != nil {
			r.evict(sub.ConnID)
		}
		return false
	}
	return true
}
