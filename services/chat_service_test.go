package services_test

import (
	"context"
	"testing"
	"time"

	"log/slog"

	"chat-presence/contract"
	"chat-presence/domain"
	"chat-presence/domain/event"
	chaterrors "chat-presence/errors"
	"chat-presence/mocks"
	"chat-presence/moderation"
	"chat-presence/runtime"
	"chat-presence/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type serviceFixture struct {
	registry *mocks.MockIRegistry
	messages *mocks.MockIMessageLog
	index    *mocks.MockIMessageIndex
	blobs    *mocks.MockIBlobStore
	typing   *mocks.MockITypingTracker
	service  *services.ChatService
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	log := slog.Default()
	registryMock := mocks.NewMockIRegistry(ctrl)
	messagesMock := mocks.NewMockIMessageLog(ctrl)
	indexMock := mocks.NewMockIMessageIndex(ctrl)
	blobsMock := mocks.NewMockIBlobStore(ctrl)
	typingMock := mocks.NewMockITypingTracker(ctrl)

	moderator, err := moderation.NewModerator([]string{"darn"}, '*', log)
	require.NoError(t, err)
	router := runtime.NewRouter(log, registryMock, messagesMock, time.Second)

	return serviceFixture{
		registry: registryMock,
		messages: messagesMock,
		index:    indexMock,
		blobs:    blobsMock,
		typing:   typingMock,
		service: services.NewChatService(log, registryMock, router, typingMock,
			&moderator, messagesMock, indexMock, blobsMock),
	}
}

func TestChatService_SendCensorsAndBroadcastsToRoom(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sinkMock := mocks.NewMockEventSink(ctrl)

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	f.registry.EXPECT().ParticipantOf("conn-a").Return(alice, true)
	f.registry.EXPECT().IsJoined("conn-a", domain.RoomID("general")).Return(true)
	f.messages.EXPECT().Append(gomock.Any()).Return(nil)
	f.registry.EXPECT().
		SubscribersOf(domain.RoomID("general"), "").
		Return([]contract.Subscriber{{ConnID: "conn-b", Sink: sinkMock}})

	var delivered domain.Message
	sinkMock.EXPECT().
		Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e event.Event) error {
			delivered = e.(event.MessageBroadcast).Message
			return nil
		})

	// When Alice sends a message containing a censored word
	msg, err := f.service.Send(context.Background(), "conn-a", "general", "well darn it")

	req.NoError(err)
	req.Equal("well **** it", msg.Content)
	req.Equal("well **** it", delivered.Content)
	req.Equal(domain.MessageText, delivered.Type)
	req.Equal("u-alice", delivered.SenderID)
}

func TestChatService_SendRejectsBadInput(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	ctx := context.Background()
	alice := domain.Participant{ID: "u-alice", Name: "Alice"}

	// Unknown connection
	f.registry.EXPECT().ParticipantOf("ghost").Return(domain.Participant{}, false)
	_, err := f.service.Send(ctx, "ghost", "general", "hi")
	req.ErrorIs(err, chaterrors.ErrUnknownConnection)

	// Connection known but not joined to the room
	f.registry.EXPECT().ParticipantOf("conn-a").Return(alice, true)
	f.registry.EXPECT().IsJoined("conn-a", domain.RoomID("general")).Return(false)
	_, err = f.service.Send(ctx, "conn-a", "general", "hi")
	req.ErrorIs(err, chaterrors.ErrNotJoined)

	// Whitespace-only content
	f.registry.EXPECT().ParticipantOf("conn-a").Return(alice, true)
	f.registry.EXPECT().IsJoined("conn-a", domain.RoomID("general")).Return(true)
	_, err = f.service.Send(ctx, "conn-a", "general", "   \n\t ")
	req.ErrorIs(err, chaterrors.ErrEmptyMessage)
}

func TestChatService_SendPrivateReachesRecipientAndEchoesSender(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	bobSink := mocks.NewMockEventSink(ctrl)
	aliceSink := mocks.NewMockEventSink(ctrl)

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	f.registry.EXPECT().ParticipantOf("conn-a").Return(alice, true)
	f.registry.EXPECT().
		SubscribersForParticipant("u-bob").
		Return([]contract.Subscriber{{ConnID: "conn-b", Sink: bobSink}})
	f.registry.EXPECT().
		SubscribersForParticipant("u-alice").
		Return([]contract.Subscriber{{ConnID: "conn-a", Sink: aliceSink}})

	// The private message reaches Bob and comes back to Alice, unpersisted:
	// no Append expectation exists on the message log.
	bobSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil)
	aliceSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil)

	msg, delivered, err := f.service.SendPrivate(context.Background(), "conn-a", "u-bob", "psst")

	req.NoError(err)
	req.True(delivered)
	req.Equal(domain.MessagePrivate, msg.Type)
	req.Equal("u-bob", msg.To)
}

func TestChatService_SendPrivateToOfflineParticipant(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	f.registry.EXPECT().ParticipantOf("conn-a").Return(alice, true)
	f.registry.EXPECT().SubscribersForParticipant("u-ghost").Return(nil)

	// No echo either: the sender learns the recipient is offline instead
	_, delivered, err := f.service.SendPrivate(context.Background(), "conn-a", "u-ghost", "anyone?")

	req.NoError(err)
	req.False(delivered)
}

func TestChatService_TypingPublishesOnlyOnChange(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	bobSink := mocks.NewMockEventSink(ctrl)

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}

	// First start: the typing set changed, others are notified
	f.registry.EXPECT().ParticipantOf("conn-a").Return(alice, true)
	f.registry.EXPECT().IsJoined("conn-a", domain.RoomID("general")).Return(true)
	f.typing.EXPECT().Set(domain.RoomID("general"), alice, true).Return(true)
	f.typing.EXPECT().Active(domain.RoomID("general")).Return([]string{"Alice"})
	f.registry.EXPECT().
		SubscribersOf(domain.RoomID("general"), "conn-a").
		Return([]contract.Subscriber{{ConnID: "conn-b", Sink: bobSink}})
	bobSink.EXPECT().
		Consume(gomock.Any(), event.TypingUpdate{Room: "general", Typing: []string{"Alice"}}).
		Return(nil)

	req.NoError(f.service.Typing(context.Background(), "conn-a", "general", true))

	// Repeated start: no change, no broadcast
	f.registry.EXPECT().ParticipantOf("conn-a").Return(alice, true)
	f.registry.EXPECT().IsJoined("conn-a", domain.RoomID("general")).Return(true)
	f.typing.EXPECT().Set(domain.RoomID("general"), alice, true).Return(false)

	req.NoError(f.service.Typing(context.Background(), "conn-a", "general", true))
}

func TestChatService_ReactRebroadcastsFullTally(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sinkMock := mocks.NewMockEventSink(ctrl)

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	messageID := uuid.New()
	tally := map[string][]string{"👍": {"u-alice", "u-bob"}}

	f.registry.EXPECT().ParticipantOf("conn-a").Return(alice, true)
	f.registry.EXPECT().IsJoined("conn-a", domain.RoomID("general")).Return(true)
	f.messages.EXPECT().
		UpdateReactions(domain.RoomID("general"), messageID.String(), gomock.Any()).
		Return(domain.Message{ID: messageID, Reactions: tally}, true, nil)
	f.registry.EXPECT().
		SubscribersOf(domain.RoomID("general"), "").
		Return([]contract.Subscriber{{ConnID: "conn-b", Sink: sinkMock}})
	sinkMock.EXPECT().
		Consume(gomock.Any(), event.ReactionUpdate{Room: "general", MessageID: messageID, Reactions: tally}).
		Return(nil)

	req.NoError(f.service.React(context.Background(), "conn-a", "general", messageID, "👍", true))
}

func TestChatService_RepeatedReactionStaysSilent(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	messageID := uuid.New()

	f.registry.EXPECT().ParticipantOf("conn-a").Return(alice, true)
	f.registry.EXPECT().IsJoined("conn-a", domain.RoomID("general")).Return(true)
	// The tally did not change: nothing is rebroadcast
	f.messages.EXPECT().
		UpdateReactions(domain.RoomID("general"), messageID.String(), gomock.Any()).
		Return(domain.Message{ID: messageID}, false, nil)

	req.NoError(f.service.React(context.Background(), "conn-a", "general", messageID, "👍", true))
}

func TestChatService_ReactOnMissingMessage(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	messageID := uuid.New()

	f.registry.EXPECT().ParticipantOf("conn-a").Return(alice, true)
	f.registry.EXPECT().IsJoined("conn-a", domain.RoomID("general")).Return(true)
	f.messages.EXPECT().
		UpdateReactions(domain.RoomID("general"), messageID.String(), gomock.Any()).
		Return(domain.Message{}, false, chaterrors.ErrMessageNotFound)

	err := f.service.React(context.Background(), "conn-a", "general", messageID, "👍", true)

	req.ErrorIs(err, chaterrors.ErrMessageNotFound)
}

func TestChatService_ShareFileBroadcastsStoredBlob(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sinkMock := mocks.NewMockEventSink(ctrl)

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	payload := []byte("fake png bytes")

	f.blobs.EXPECT().
		Store(payload, "cat.png").
		Return(contract.BlobInfo{URL: "http://localhost:8080/uploads/abc-cat.png", ContentType: "image/png"}, nil)
	f.messages.EXPECT().Append(gomock.Any()).Return(nil)
	f.registry.EXPECT().
		SubscribersOf(domain.RoomID("general"), "").
		Return([]contract.Subscriber{{ConnID: "conn-b", Sink: sinkMock}})

	var delivered domain.Message
	sinkMock.EXPECT().
		Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e event.Event) error {
			delivered = e.(event.MessageBroadcast).Message
			return nil
		})

	msg, err := f.service.ShareFile(context.Background(), alice, "general", payload, "cat.png")

	req.NoError(err)
	req.Equal(domain.MessageFile, msg.Type)
	req.Equal("http://localhost:8080/uploads/abc-cat.png", delivered.FileURL)
	req.Equal("image/png", delivered.FileType)
	req.Equal("cat.png", delivered.Content)
}

func TestChatService_HistoryAndPurgeDelegate(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)

	stored := []domain.Message{{ID: uuid.New(), Content: "old"}}
	cursor := "opaque"
	f.messages.EXPECT().Recent(domain.RoomID("general"), (*string)(nil)).Return(stored, &cursor, nil)

	messages, next, err := f.service.History("general", nil)
	req.NoError(err)
	req.Equal(stored, messages)
	req.Equal("opaque", *next)

	f.messages.EXPECT().PurgeOlderThan(48 * time.Hour).Return(7, nil)
	count, err := f.service.Purge(48 * time.Hour)
	req.NoError(err)
	req.Equal(7, count)
}
