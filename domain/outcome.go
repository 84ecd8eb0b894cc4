package domain

// JoinOutcome reports whether the joining participant was already present in
// the room through this or another connection. AlreadyPresent=false marks a
// genuine 0→1 presence transition and is the only trigger for a "joined"
// announcement.
type JoinOutcome struct {
	AlreadyPresent bool
}

// LeaveOutcome reports the effect of a leave on participant-level presence.
// WasMember is false when the connection had never joined the room (leaves
// racing with disconnects are silent no-ops). StillPresent=false marks the
// ≥1→0 transition that triggers a "left" announcement.
type LeaveOutcome struct {
	WasMember    bool
	StillPresent bool
}

// Departure is one room vacated by a disconnecting connection.
type Departure struct {
	Room         RoomID
	StillPresent bool
}
