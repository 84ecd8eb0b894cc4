package services

import (
	"context"
	"strings"
	"time"

	"log/slog"

	"chat-presence/contract"
	"chat-presence/domain"
	"chat-presence/domain/event"
	chaterrors "chat-presence/errors"
	"chat-presence/moderation"
	"chat-presence/runtime"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
)

type IChatService interface {
	Send(ctx context.Context, connID string, room domain.RoomID, text string) (domain.Message, error)
	SendPrivate(ctx context.Context, connID, recipientID, text string) (domain.Message, bool, error)
	Typing(ctx context.Context, connID string, room domain.RoomID, isTyping bool) error
	React(ctx context.Context, connID string, room domain.RoomID, messageID uuid.UUID, emoji string, add bool) error
	ShareFile(ctx context.Context, sender domain.Participant, room domain.RoomID, data []byte, filename string) (domain.Message, error)
	History(room domain.RoomID, cursor *string) ([]domain.Message, *string, error)
	Search(ctx context.Context, room domain.RoomID, terms string, limit int) ([]domain.Message, error)
	Purge(olderThan time.Duration) (int, error)
}

// ChatService is the command surface the gateway drives. It owns what happens
// to a message between the wire and the room: moderation, persistence and
// fan-out are decided here, never in the transport layer.
type ChatService struct {
	log       *slog.Logger
	registry  contract.IRegistry
	router    *runtime.Router
	typing    contract.ITypingTracker
	moderator *moderation.Moderator
	messages  contract.IMessageLog
	index     contract.IMessageIndex
	blobs     contract.IBlobStore
}

func NewChatService(
	log *slog.Logger,
	registry contract.IRegistry,
	router *runtime.Router,
	typing contract.ITypingTracker,
	moderator *moderation.Moderator,
	messages contract.IMessageLog,
	index contract.IMessageIndex,
	blobs contract.IBlobStore,
) *ChatService {
	return &ChatService{
		log:       log,
		registry:  registry,
		router:    router,
		typing:    typing,
		moderator: moderator,
		messages:  messages,
		blobs:     blobs,
		index:     index,
	}
}

// Send moderates and broadcasts a text message to every subscriber of the
// room, sender included. A persistence failure does not stop the broadcast;
// it is reported back to the caller once delivery has been attempted.
func (s *ChatService) Send(ctx context.Context, connID string, room domain.RoomID, text string) (domain.Message, error) {
	sender, ok := s.registry.ParticipantOf(connID)
	if !ok {
		return domain.Message{}, chaterrors.ErrUnknownConnection
	}
	if !s.registry.IsJoined(connID, room) {
		return domain.Message{}, chaterrors.ErrNotJoined
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, chaterrors.ErrEmptyMessage
	}

	censored, words := s.moderator.Censor(text)
	if len(words) > 0 {
		info := whatlanggo.Detect(text)
		s.log.Info("message censored",
			"room", room,
			"sender_id", sender.ID,
			"words", words,
			"lang", info.Lang.Iso6391())
	}

	msg := domain.Message{
		ID:        uuid.New(),
		Room:      room,
		SenderID:  sender.ID,
		Sender:    sender.Name,
		Type:      domain.MessageText,
		Content:   censored,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.router.ToRoom(ctx, msg, "")
	return msg, err
}

// SendPrivate delivers a direct message to every live connection of the
// recipient and echoes it to the sender's connections. Private messages are
// never persisted. The boolean reports whether the recipient was reachable.
func (s *ChatService) SendPrivate(ctx context.Context, connID, recipientID, text string) (domain.Message, bool, error) {
	sender, ok := s.registry.ParticipantOf(connID)
	if !ok {
		return domain.Message{}, false, chaterrors.ErrUnknownConnection
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, false, chaterrors.ErrEmptyMessage
	}

	censored, _ := s.moderator.Censor(text)
	msg := domain.Message{
		ID:        uuid.New(),
		SenderID:  sender.ID,
		Sender:    sender.Name,
		To:        recipientID,
		Type:      domain.MessagePrivate,
		Content:   censored,
		CreatedAt: time.Now().UTC(),
	}
	delivered := s.router.ToParticipant(ctx, recipientID, msg)
	if delivered && recipientID != sender.ID {
		s.router.ToParticipant(ctx, sender.ID, msg)
	}
	return msg, delivered, nil
}

// Typing records a typing start or stop and, when the room's typing set
// actually changed, notifies every other subscriber of the room.
func (s *ChatService) Typing(ctx context.Context, connID string, room domain.RoomID, isTyping bool) error {
	p, ok := s.registry.ParticipantOf(connID)
	if !ok {
		return chaterrors.ErrUnknownConnection
	}
	if !s.registry.IsJoined(connID, room) {
		return chaterrors.ErrNotJoined
	}
	if !s.typing.Set(room, p, isTyping) {
		return nil
	}
	s.router.Publish(ctx, event.TypingUpdate{
		Room:   room,
		Typing: s.typing.Active(room),
	}, connID)
	return nil
}

// React toggles the caller's reaction on a stored message and rebroadcasts
// the full tally. Repeating an add or a remove is a silent no-op.
func (s *ChatService) React(ctx context.Context, connID string, room domain.RoomID, messageID uuid.UUID, emoji string, add bool) error {
	p, ok := s.registry.ParticipantOf(connID)
	if !ok {
		return chaterrors.ErrUnknownConnection
	}
	if !s.registry.IsJoined(connID, room) {
		return chaterrors.ErrNotJoined
	}

	updated, changed, err := s.messages.UpdateReactions(room, messageID.String(), func(m *domain.Message) bool {
		if add {
			return m.AddReaction(emoji, p.ID)
		}
		return m.RemoveReaction(emoji, p.ID)
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	s.router.Publish(ctx, event.ReactionUpdate{
		Room:      room,
		MessageID: messageID,
		Reactions: updated.Reactions,
	}, "")
	return nil
}

// ShareFile stores the upload, then broadcasts a file message pointing at
// the stored blob's URL.
func (s *ChatService) ShareFile(ctx context.Context, sender domain.Participant, room domain.RoomID, data []byte, filename string) (domain.Message, error) {
	blob, err := s.blobs.Store(data, filename)
	if err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		ID:        uuid.New(),
		Room:      room,
		SenderID:  sender.ID,
		Sender:    sender.Name,
		Type:      domain.MessageFile,
		Content:   filename,
		FileURL:   blob.URL,
		FileType:  blob.ContentType,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.router.ToRoom(ctx, msg, "")
	return msg, err
}

// History returns the most recent page of the room's stored messages,
// oldest first, with an opaque cursor for the next older page.
func (s *ChatService) History(room domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	return s.messages.Recent(room, cursor)
}

// Search runs a full-text query against the room's indexed messages.
func (s *ChatService) Search(ctx context.Context, room domain.RoomID, terms string, limit int) ([]domain.Message, error) {
	return s.index.Search(ctx, room, terms, limit)
}

// Purge drops stored messages older than the given age and reports how
// many were removed.
func (s *ChatService) Purge(olderThan time.Duration) (int, error) {
	return s.messages.PurgeOlderThan(olderThan)
}
