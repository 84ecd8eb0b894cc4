package runtime_test

import (
	"context"
	"testing"

	"log/slog"

	"chat-presence/contract"
	"chat-presence/domain"
	"chat-presence/domain/event"
	"chat-presence/runtime"

	"github.com/stretchr/testify/require"
)

type nopSink struct{}

func (nopSink) Consume(context.Context, event.Event) error { return nil }

func newRegistry() *runtime.Registry {
	return runtime.NewRegistry(slog.Default())
}

func TestRegistry_FirstDeviceJoinIsNotAlreadyPresent(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	// Given a registered connection
	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	registry.Register("c1", alice, nopSink{})

	// When it joins a room for the first time
	out, err := registry.Join("c1", "general")

	// Then the join is a genuine presence transition
	req.NoError(err)
	req.False(out.AlreadyPresent)
	req.True(registry.IsJoined("c1", "general"))
}

func TestRegistry_SecondTabJoinIsAlreadyPresent(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	// Given Alice already in the room through one tab
	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	registry.Register("tab1", alice, nopSink{})
	registry.Register("tab2", alice, nopSink{})
	_, err := registry.Join("tab1", "general")
	req.NoError(err)

	// When a second tab of the same participant joins
	out, err := registry.Join("tab2", "general")

	// Then no new presence transition happened
	req.NoError(err)
	req.True(out.AlreadyPresent)

	// And the member list still carries Alice once
	members := registry.MembersOf("general")
	req.Len(members, 1)
	req.Equal("Alice", members[0].Name)
}

func TestRegistry_RepeatedJoinFromSameConnectionIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	registry.Register("c1", alice, nopSink{})

	_, err := registry.Join("c1", "general")
	req.NoError(err)
	out, err := registry.Join("c1", "general")
	req.NoError(err)

	req.True(out.AlreadyPresent)
	req.Len(registry.MembersOf("general"), 1)

	// A single leave fully vacates: the refcount was never double-counted.
	gone := registry.Leave("c1", "general")
	req.True(gone.WasMember)
	req.False(gone.StillPresent)
	req.Empty(registry.MembersOf("general"))
}

func TestRegistry_LeaveKeepsPresenceWhileAnotherTabRemains(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	registry.Register("tab1", alice, nopSink{})
	registry.Register("tab2", alice, nopSink{})
	_, _ = registry.Join("tab1", "general")
	_, _ = registry.Join("tab2", "general")

	// When one of the two tabs leaves
	out := registry.Leave("tab1", "general")

	// Then Alice is still present through the other tab
	req.True(out.WasMember)
	req.True(out.StillPresent)
	req.Len(registry.MembersOf("general"), 1)

	// And the last tab leaving ends the presence
	out = registry.Leave("tab2", "general")
	req.True(out.WasMember)
	req.False(out.StillPresent)
	req.Empty(registry.MembersOf("general"))
}

func TestRegistry_LeaveWithoutJoinIsSilent(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	registry.Register("c1", alice, nopSink{})

	out := registry.Leave("c1", "general")

	req.False(out.WasMember)
	req.False(out.StillPresent)
}

func TestRegistry_DisconnectVacatesEveryRoomOnce(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	registry.Register("c1", alice, nopSink{})
	_, _ = registry.Join("c1", "general")
	_, _ = registry.Join("c1", "random")

	// When the connection drops
	departures := registry.Disconnect("c1")

	// Then both rooms report the departure, in deterministic order
	req.Len(departures, 2)
	req.Equal(domain.RoomID("general"), departures[0].Room)
	req.Equal(domain.RoomID("random"), departures[1].Room)
	req.False(departures[0].StillPresent)
	req.False(departures[1].StillPresent)

	// And a second disconnect, racing the first, is a silent no-op
	req.Empty(registry.Disconnect("c1"))
}

func TestRegistry_DisconnectAfterLeaveDoesNotDoubleCount(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	bob := domain.Participant{ID: "u-bob", Name: "Bob"}
	registry.Register("a1", alice, nopSink{})
	registry.Register("b1", bob, nopSink{})
	_, _ = registry.Join("a1", "general")
	_, _ = registry.Join("b1", "general")

	// Given Alice already left explicitly
	registry.Leave("a1", "general")

	// When her transport close arrives afterwards
	departures := registry.Disconnect("a1")

	// Then no departure is reported twice and Bob is untouched
	req.Empty(departures)
	members := registry.MembersOf("general")
	req.Len(members, 1)
	req.Equal("Bob", members[0].Name)
}

func TestRegistry_MembersOfSortsByName(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	registry.Register("c1", domain.Participant{ID: "u-1", Name: "Zoe"}, nopSink{})
	registry.Register("c2", domain.Participant{ID: "u-2", Name: "Alice"}, nopSink{})
	registry.Register("c3", domain.Participant{ID: "u-3", Name: "Bob"}, nopSink{})
	for _, conn := range []string{"c1", "c2", "c3"} {
		_, err := registry.Join(conn, "general")
		req.NoError(err)
	}

	members := registry.MembersOf("general")

	req.Equal([]string{"Alice", "Bob", "Zoe"}, []string{members[0].Name, members[1].Name, members[2].Name})
}

func TestRegistry_SubscribersOfExcludesOneConnection(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	registry.Register("c1", domain.Participant{ID: "u-1", Name: "Alice"}, nopSink{})
	registry.Register("c2", domain.Participant{ID: "u-2", Name: "Bob"}, nopSink{})
	_, _ = registry.Join("c1", "general")
	_, _ = registry.Join("c2", "general")

	subs := registry.SubscribersOf("general", "c1")

	req.Len(subs, 1)
	req.Equal("c2", subs[0].ConnID)
}

func TestRegistry_SubscribersForParticipantSpansConnections(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	registry.Register("tab1", alice, nopSink{})
	registry.Register("tab2", alice, nopSink{})
	registry.Register("b1", domain.Participant{ID: "u-bob", Name: "Bob"}, nopSink{})

	subs := registry.SubscribersForParticipant("u-alice")

	req.Len(subs, 2)
	for _, s := range subs {
		req.Contains([]string{"tab1", "tab2"}, s.ConnID)
	}
}

func TestRegistry_EmptyRoomIsForgotten(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	alice := domain.Participant{ID: "u-alice", Name: "Alice"}
	registry.Register("c1", alice, nopSink{})
	_, _ = registry.Join("c1", "general")
	registry.Leave("c1", "general")

	// A vacated room keeps no state: rejoining starts a fresh presence.
	req.Empty(registry.MembersOf("general"))
	out, err := registry.Join("c1", "general")
	req.NoError(err)
	req.False(out.AlreadyPresent)
}

var _ contract.IRegistry = (*runtime.Registry)(nil)
