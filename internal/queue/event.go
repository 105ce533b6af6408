// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the background consumer.
package queue

import "time"

// ActivityQueue is the durable queue all account activity is published to.
const ActivityQueue = "vkm.activity"

// Event types.
const (
	EventUserRegistered   = "user.registered"
	EventUserDeleted      = "user.deleted"
	EventFavoritesChanged = "favorites.changed"
)

// ActivityEvent is published after a successful account or favorites
// change.  It carries enough to write an audit line without querying the
// database.
type ActivityEvent struct {
	Type       string   `json:"type"`
	UserID     uint64   `json:"user_id"`
	Email      string   `json:"email,omitempty"`
	ModuleID   uint64   `json:"module_id,omitempty"`
	Action     string   `json:"action,omitempty"` // "added" or "removed" for favorites.changed
	Favorites  []uint64 `json:"favorites,omitempty"`
	OccurredAt string   `json:"occurred_at"`
}

// NewActivityEvent stamps an event of type typ for userID with the current
// UTC time.
func NewActivityEvent(typ string, userID uint64) ActivityEvent {
	return ActivityEvent{Type: typ, UserID: userID, OccurredAt: time.Now().UTC().Format(time.RFC3339)}
}
