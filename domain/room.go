package domain

// RoomID is the name of a broadcast channel. A room exists only while at
// least one connection is joined to it.
type RoomID string

func (r RoomID) String() string {
	return string(r)
}
