package runtime_test

import (
	"testing"
	"time"

	"chat-presence/domain"
	"chat-presence/runtime"

	"github.com/stretchr/testify/require"
)

func TestTypingTracker_StartAndStop(t *testing.T) {
	req := require.New(t)
	tracker := runtime.NewTypingTracker(5 * time.Second)
	alice := domain.Participant{ID: "u-alice", Name: "Alice"}

	// A first start changes the set
	req.True(tracker.Set("general", alice, true))
	req.Equal([]string{"Alice"}, tracker.Active("general"))

	// Restarting while already typing only refreshes the deadline
	req.False(tracker.Set("general", alice, true))

	// Stopping removes the entry
	req.True(tracker.Set("general", alice, false))
	req.Empty(tracker.Active("general"))

	// Stopping again is a no-op
	req.False(tracker.Set("general", alice, false))
}

func TestTypingTracker_ActiveIsSorted(t *testing.T) {
	req := require.New(t)
	tracker := runtime.NewTypingTracker(5 * time.Second)

	tracker.Set("general", domain.Participant{ID: "u-1", Name: "Zoe"}, true)
	tracker.Set("general", domain.Participant{ID: "u-2", Name: "Alice"}, true)
	tracker.Set("general", domain.Participant{ID: "u-3", Name: "Bob"}, true)

	req.Equal([]string{"Alice", "Bob", "Zoe"}, tracker.Active("general"))
}

func TestTypingTracker_RoomsAreIndependent(t *testing.T) {
	req := require.New(t)
	tracker := runtime.NewTypingTracker(5 * time.Second)
	alice := domain.Participant{ID: "u-alice", Name: "Alice"}

	tracker.Set("general", alice, true)

	req.Equal([]string{"Alice"}, tracker.Active("general"))
	req.Empty(tracker.Active("random"))
}

func TestTypingTracker_SweepExpiresStaleEntries(t *testing.T) {
	req := require.New(t)
	tracker := runtime.NewTypingTracker(3 * time.Second)

	tracker.Set("general", domain.Participant{ID: "u-alice", Name: "Alice"}, true)
	tracker.Set("random", domain.Participant{ID: "u-bob", Name: "Bob"}, true)

	// Before the deadline nothing expires
	req.Empty(tracker.SweepExpired(time.Now()))

	// After the deadline both rooms report a change
	changed := tracker.SweepExpired(time.Now().Add(5 * time.Second))
	req.Len(changed, 2)
	req.Empty(tracker.Active("general"))
	req.Empty(tracker.Active("random"))

	// A second sweep finds nothing left
	req.Empty(tracker.SweepExpired(time.Now().Add(10 * time.Second)))
}

func TestTypingTracker_ClearDropsParticipant(t *testing.T) {
	req := require.New(t)
	tracker := runtime.NewTypingTracker(5 * time.Second)

	tracker.Set("general", domain.Participant{ID: "u-alice", Name: "Alice"}, true)

	req.True(tracker.Clear("general", "u-alice"))
	req.Empty(tracker.Active("general"))
	req.False(tracker.Clear("general", "u-alice"))
}
