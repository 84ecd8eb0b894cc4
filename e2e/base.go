package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"log/slog"

	"chat-presence/auth"
	"chat-presence/client"
	"chat-presence/domain"
	"chat-presence/domain/event"
	"chat-presence/gateway"
	"chat-presence/moderation"
	"chat-presence/observability"
	"chat-presence/projection"
	"chat-presence/repositories"
	"chat-presence/runtime"
	"chat-presence/services"
	"chat-presence/sink"
	"chat-presence/storage"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

const jwtSecret = "e2e-secret"

// BaseChatSuite stands up the complete engine in-process: real Badger
// log, real Bluge index, real disk store, real gateway behind an
// httptest server. Scenario suites embed it.
type BaseChatSuite struct {
	suite.Suite
	Config Config

	db       *badger.DB
	writer   *bluge.Writer
	ts       *httptest.Server
	verifier auth.Verifier
	activity *projection.RoomActivity
	metrics  *observability.Metrics

	usersMu sync.Mutex
	users   []*User
}

// SetupSuite loads the environment configuration and boots the stack.
func (s *BaseChatSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	log := slog.Default()
	gin.SetMode(gin.TestMode)

	dir := s.T().TempDir()
	s.db, err = badger.Open(badger.DefaultOptions(dir + "/badger").WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	s.writer, err = bluge.OpenWriter(bluge.DefaultConfig(dir + "/bluge"))
	s.Require().NoError(err)

	registry := runtime.NewRegistry(log)
	messageLog := repositories.NewMessageLog(s.db, log, nil)
	messageIndex := repositories.NewMessageIndex(s.writer, log)
	blobs, err := storage.NewDiskStore(dir+"/uploads", "http://localhost", log)
	s.Require().NoError(err)

	router := runtime.NewRouter(log, registry, messageLog, time.Second)
	s.activity = projection.NewRoomActivity()
	s.metrics = observability.NewMetrics()
	router.Add(sink.NewIndexSink(messageIndex, log), s.activity, s.metrics)
	typing := runtime.NewTypingTracker(5 * time.Second)
	presence := runtime.NewPresence(log, registry, router, typing)
	moderator, err := moderation.NewModerator([]string{"heck"}, '*', log)
	s.Require().NoError(err)
	service := services.NewChatService(log, registry, router, typing,
		&moderator, messageLog, messageIndex, blobs)
	s.verifier = auth.NewVerifier(jwtSecret)

	server := gateway.NewServer(log, s.verifier, registry, presence, router, service,
		s.activity, s.metrics)
	engine := gin.New()
	server.Routes(engine, dir+"/uploads")
	s.ts = httptest.NewServer(engine)
}

func (s *BaseChatSuite) TearDownSuite() {
	// Connections live for the whole suite; registering their close on a
	// subtest's testing.T would sever them between scenario steps.
	s.usersMu.Lock()
	users := s.users
	s.users = nil
	s.usersMu.Unlock()
	for _, user := range users {
		_ = user.Chat.Close()
	}
	if s.ts != nil {
		s.ts.Close()
	}
	if s.writer != nil {
		s.Require().NoError(s.writer.Close())
	}
	if s.db != nil {
		s.Require().NoError(s.db.Close())
	}
}

// Banner prints a colorized step header in logs.
func (s *BaseChatSuite) Banner(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// User is one connected participant with every received event recorded.
type User struct {
	Participant domain.Participant
	Chat        *client.Client

	mu        sync.Mutex
	messages  []domain.Message
	presences []event.PresenceUpdate
	typings   []event.TypingUpdate
	reactions []event.ReactionUpdate
	errors    []error
}

// Connect dials the gateway as the named participant and starts
// recording events.
func (s *BaseChatSuite) Connect(id, name string) *User {
	token, err := s.verifier.Mint(domain.Participant{ID: id, Name: name}, time.Minute)
	s.Require().NoError(err)

	wsURL := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
	user := &User{Participant: domain.Participant{ID: id, Name: name}}
	user.Chat = client.NewClient(client.DefaultConfig(wsURL, token), slog.Default())

	user.Chat.OnMessage(func(msg domain.Message) {
		if s.Config.DebugFrames {
			s.T().Logf("%s <- message %s: %q", name, msg.Sender, msg.Content)
		}
		user.mu.Lock()
		user.messages = append(user.messages, msg)
		user.mu.Unlock()
	})
	user.Chat.OnPresence(func(e event.PresenceUpdate) {
		user.mu.Lock()
		user.presences = append(user.presences, e)
		user.mu.Unlock()
	})
	user.Chat.OnTyping(func(e event.TypingUpdate) {
		user.mu.Lock()
		user.typings = append(user.typings, e)
		user.mu.Unlock()
	})
	user.Chat.OnReaction(func(e event.ReactionUpdate) {
		user.mu.Lock()
		user.reactions = append(user.reactions, e)
		user.mu.Unlock()
	})
	user.Chat.OnError(func(err error) {
		user.mu.Lock()
		user.errors = append(user.errors, err)
		user.mu.Unlock()
	})

	s.Require().NoError(user.Chat.Connect(context.Background()))
	s.usersMu.Lock()
	s.users = append(s.users, user)
	s.usersMu.Unlock()
	return user
}

// WaitMessage blocks until a received message satisfies the predicate.
func (s *BaseChatSuite) WaitMessage(user *User, describe string, match func(domain.Message) bool) domain.Message {
	var found domain.Message
	s.Require().Eventually(func() bool {
		user.mu.Lock()
		defer user.mu.Unlock()
		for _, msg := range user.messages {
			if match(msg) {
				found = msg
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "waiting for %s at %s", describe, user.Participant.Name)
	return found
}

// WaitPresence blocks until a roster for the room with the wanted size arrived.
func (s *BaseChatSuite) WaitPresence(user *User, room domain.RoomID, members int) event.PresenceUpdate {
	var found event.PresenceUpdate
	s.Require().Eventually(func() bool {
		user.mu.Lock()
		defer user.mu.Unlock()
		for _, e := range user.presences {
			if e.Room == room && len(e.Members) == members {
				found = e
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "waiting for %d members in %s at %s", members, room, user.Participant.Name)
	return found
}

// WaitTyping blocks until a typing roster for the room satisfies the predicate.
func (s *BaseChatSuite) WaitTyping(user *User, room domain.RoomID, match func([]string) bool) {
	s.Require().Eventually(func() bool {
		user.mu.Lock()
		defer user.mu.Unlock()
		for _, e := range user.typings {
			if e.Room == room && match(e.Typing) {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "waiting for typing update in %s at %s", room, user.Participant.Name)
}

// WaitReaction blocks until a reaction tally for the message arrived.
func (s *BaseChatSuite) WaitReaction(user *User, messageID uuid.UUID, match func(map[string][]string) bool) {
	s.Require().Eventually(func() bool {
		user.mu.Lock()
		defer user.mu.Unlock()
		for _, e := range user.reactions {
			if e.MessageID == messageID && match(e.Reactions) {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "waiting for reaction tally on %s at %s", messageID, user.Participant.Name)
}
