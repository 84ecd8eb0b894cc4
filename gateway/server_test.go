package gateway_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"chat-presence/auth"
	"chat-presence/domain"
	"chat-presence/gateway"
	"chat-presence/mocks"
	"chat-presence/moderation"
	"chat-presence/observability"
	"chat-presence/projection"
	"chat-presence/runtime"
	"chat-presence/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testEnv struct {
	ts       *httptest.Server
	verifier auth.Verifier
	messages *mocks.MockIMessageLog
	index    *mocks.MockIMessageIndex
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	log := slog.Default()
	messagesMock := mocks.NewMockIMessageLog(ctrl)
	messagesMock.EXPECT().Append(gomock.Any()).Return(nil).AnyTimes()
	indexMock := mocks.NewMockIMessageIndex(ctrl)
	blobsMock := mocks.NewMockIBlobStore(ctrl)

	registry := runtime.NewRegistry(log)
	router := runtime.NewRouter(log, registry, messagesMock, time.Second)
	typing := runtime.NewTypingTracker(5 * time.Second)
	presence := runtime.NewPresence(log, registry, router, typing)
	moderator, err := moderation.NewModerator([]string{"darn"}, '*', log)
	require.NoError(t, err)
	service := services.NewChatService(log, registry, router, typing,
		&moderator, messagesMock, indexMock, blobsMock)
	verifier := auth.NewVerifier("test-secret")
	activity := projection.NewRoomActivity()
	metrics := observability.NewMetrics()
	router.Add(activity, metrics)

	server := gateway.NewServer(log, verifier, registry, presence, router, service, activity, metrics)
	engine := gin.New()
	server.Routes(engine, t.TempDir())

	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)
	return testEnv{ts: ts, verifier: verifier, messages: messagesMock, index: indexMock}
}

func (e testEnv) dial(t *testing.T, p domain.Participant) *websocket.Conn {
	t.Helper()
	token, err := e.verifier.Mint(p, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventName string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(map[string]any{"event": eventName, "data": json.RawMessage(data)})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// waitFor reads frames until one matches the wanted event name.
func waitFor(t *testing.T, conn *websocket.Conn, eventName string) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", eventName)
		var env received
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Event == eventName {
			return env
		}
	}
}

func TestGateway_RejectsMissingToken(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestGateway_JoinBroadcastsToOthersOnly(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.dial(t, domain.Participant{ID: "u-alice", Name: "Alice"})
	send(t, alice, "join", map[string]string{"room": "general"})
	waitFor(t, alice, "presence_update")

	bob := env.dial(t, domain.Participant{ID: "u-bob", Name: "Bob"})
	send(t, bob, "join", map[string]string{"room": "general"})

	// Alice hears the announcement
	announcement := waitFor(t, alice, "message")
	var wrapper struct {
		Message domain.Message `json:"message"`
	}
	req.NoError(json.Unmarshal(announcement.Data, &wrapper))
	req.Equal(domain.MessageSystem, wrapper.Message.Type)
	req.Equal("Bob joined the chat", wrapper.Message.Content)

	// Bob only gets the roster, never his own announcement
	roster := waitFor(t, bob, "presence_update")
	var update struct {
		Members []domain.Participant `json:"members"`
	}
	req.NoError(json.Unmarshal(roster.Data, &update))
	req.Len(update.Members, 2)
}

func TestGateway_SendReachesEveryMember(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.dial(t, domain.Participant{ID: "u-alice", Name: "Alice"})
	bob := env.dial(t, domain.Participant{ID: "u-bob", Name: "Bob"})
	send(t, alice, "join", map[string]string{"room": "general"})
	waitFor(t, alice, "presence_update")
	send(t, bob, "join", map[string]string{"room": "general"})
	waitFor(t, bob, "presence_update")

	send(t, bob, "send", map[string]string{"room": "general", "content": "hello darn world"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		env2 := waitFor(t, conn, "message")
		var wrapper struct {
			Message domain.Message `json:"message"`
		}
		req.NoError(json.Unmarshal(env2.Data, &wrapper))
		if wrapper.Message.Type == domain.MessageSystem {
			env2 = waitFor(t, conn, "message")
			req.NoError(json.Unmarshal(env2.Data, &wrapper))
		}
		// Moderation ran before fan-out
		req.Equal("hello **** world", wrapper.Message.Content)
		req.Equal("u-bob", wrapper.Message.SenderID)
	}
}

func TestGateway_InvalidFrameGetsErrorNotDisconnect(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.dial(t, domain.Participant{ID: "u-alice", Name: "Alice"})

	send(t, alice, "send", map[string]string{"room": "no:colons:allowed", "content": "hi"})

	env2 := waitFor(t, alice, "error")
	var payload struct {
		Reason string `json:"reason"`
	}
	req.NoError(json.Unmarshal(env2.Data, &payload))
	req.NotEmpty(payload.Reason)

	// The connection survived the bad frame
	send(t, alice, "join", map[string]string{"room": "general"})
	waitFor(t, alice, "presence_update")
}

func TestGateway_HistoryEndpointRequiresAuth(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/api/rooms/general/messages")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestGateway_HistoryEndpointReturnsStoredMessages(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	stored := []domain.Message{{
		ID:       uuid.New(),
		Room:     "general",
		SenderID: "u-alice",
		Sender:   "Alice",
		Type:     domain.MessageText,
		Content:  "earlier",
	}}
	env.messages.EXPECT().Recent(domain.RoomID("general"), (*string)(nil)).Return(stored, nil, nil)

	token, err := env.verifier.Mint(domain.Participant{ID: "u-alice", Name: "Alice"}, time.Minute)
	req.NoError(err)

	httpReq, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/rooms/general/messages", nil)
	req.NoError(err)
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(httpReq)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Len(body.Messages, 1)
	req.Equal("earlier", body.Messages[0].Content)
}

func TestGateway_RoomDirectoryAndStatsReflectTraffic(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.dial(t, domain.Participant{ID: "u-alice", Name: "Alice"})
	send(t, alice, "join", map[string]string{"room": "general"})
	waitFor(t, alice, "presence_update")

	send(t, alice, "send", map[string]string{"room": "general", "content": "anyone around?"})
	waitFor(t, alice, "message")

	token, err := env.verifier.Mint(domain.Participant{ID: "u-alice", Name: "Alice"}, time.Minute)
	req.NoError(err)
	get := func(path string, out any) int {
		httpReq, err := http.NewRequest(http.MethodGet, env.ts.URL+path, nil)
		req.NoError(err)
		httpReq.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(httpReq)
		req.NoError(err)
		defer resp.Body.Close()
		req.NoError(json.NewDecoder(resp.Body).Decode(out))
		return resp.StatusCode
	}

	// Permanent sinks run on the broadcast path, so the directory catches
	// up as soon as the sender got its own echo.
	var rooms struct {
		Rooms []projection.RoomSummary `json:"rooms"`
	}
	req.Eventually(func() bool {
		rooms.Rooms = nil
		return get("/api/rooms", &rooms) == http.StatusOK && len(rooms.Rooms) == 1
	}, 2*time.Second, 20*time.Millisecond)
	req.Equal(domain.RoomID("general"), rooms.Rooms[0].Room)
	req.Equal(1, rooms.Rooms[0].Messages)
	req.Equal("Alice", rooms.Rooms[0].LastSender)

	var stats observability.Stats
	req.Equal(http.StatusOK, get("/api/stats", &stats))
	req.EqualValues(1, stats.Connections)
	req.EqualValues(1, stats.TextMessages)
}
