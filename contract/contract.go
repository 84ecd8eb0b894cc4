//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-presence/domain"
	"chat-presence/domain/event"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the delivery end of one live connection (or of a permanent
// in-process consumer such as the search index). Consume must never block
// beyond ctx: a sink whose buffer is full returns ErrSlowConsumer and will
// be evicted by the router.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Subscriber pairs a room-joined connection with its sink so the router can
// evict the exact connection that failed delivery.
type Subscriber struct {
	ConnID string
	Sink   EventSink
}

type IRegistry interface {
	Register(connID string, p domain.Participant, sink EventSink)
	Join(connID string, room domain.RoomID) (domain.JoinOutcome, error)
	Leave(connID string, room domain.RoomID) domain.LeaveOutcome
	Disconnect(connID string) []domain.Departure
	MembersOf(room domain.RoomID) []domain.Participant
	SubscribersOf(room domain.RoomID, excludingConn string) []Subscriber
	SubscribersForParticipant(participantID string) []Subscriber
	SinkOf(connID string) (EventSink, bool)
	ParticipantOf(connID string) (domain.Participant, bool)
	IsJoined(connID string, room domain.RoomID) bool
}

// IRoomPublisher pushes an ephemeral event (presence, typing, reactions) to
// every subscriber of a room without touching the message log.
type IRoomPublisher interface {
	Publish(ctx context.Context, evt event.Event, excludingConn string) int
}

// IMessageLog is the durable, time-ordered log collaborator.
type IMessageLog interface {
	Append(msg domain.Message) error
	Recent(room domain.RoomID, cursor *string) ([]domain.Message, *string, error)
	PurgeOlderThan(age time.Duration) (int, error)
	UpdateReactions(room domain.RoomID, messageID string, mutate func(*domain.Message) bool) (domain.Message, bool, error)
}

// IMessageIndex is the full-text index collaborator.
type IMessageIndex interface {
	Index(msg domain.Message) error
	Search(ctx context.Context, room domain.RoomID, terms string, limit int) ([]domain.Message, error)
}

// IBlobStore stores shared file payloads and hands back a retrievable URL.
type IBlobStore interface {
	Store(data []byte, filename string) (BlobInfo, error)
}

type BlobInfo struct {
	URL         string
	ContentType string
}

// IIdentityVerifier turns the credential carried by a handshake into a
// verified participant, or fails.
type IIdentityVerifier interface {
	Verify(credential string) (domain.Participant, error)
}

// ITypingTracker is the ephemeral per-room typing state.
type ITypingTracker interface {
	Set(room domain.RoomID, p domain.Participant, isTyping bool) bool
	Clear(room domain.RoomID, participantID string) bool
	Active(room domain.RoomID) []string
	SweepExpired(now time.Time) []domain.RoomID
}
