package bus

import "time"

// Event kinds published in studyhall, grouped by namespace prefix.
const (
	KindFeedUpdated     = "feed.updated"
	KindFeedOffline     = "feed.offline"
	KindIdentityChanged = "session.identity_changed"
	KindStatusChanged   = "session.status_changed"
	KindRemoteUp        = "remote.connected"
	KindRemoteDown      = "remote.disconnected"
	KindOutboxQueued    = "outbox.queued"
	KindOutboxSent      = "outbox.sent"
	KindOutboxFailed    = "outbox.failed"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent builds an event stamped with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}

// FeedUpdate is the payload for feed.updated and feed.offline events.
type FeedUpdate struct {
	ScopeKey string
	Count    int
	Offline  bool
}
