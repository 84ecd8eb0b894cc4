// Package domain contains core concepts of the presence system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

// Participant is a logical user. One participant may hold several live
// connections at once (multiple tabs or devices); presence is tracked per
// participant, never per connection.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
