package models

import "time"

// RequestEdge is one side of a pending request: a snapshot of the counterpart
// profile stored under the owner's sentRequests or receivedRequests.
type RequestEdge struct {
	Profile
	Timestamp time.Time `json:"timestamp"`
}

// ConnectionEdge is one side of an accepted connection. Both mirrors carry the
// same ConnectedAt.
type ConnectionEdge struct {
	Profile
	ConnectedAt time.Time `json:"connectedAt"`
}

// Per-user ledger subcollections.
const (
	SentRequests     = "sentRequests"
	ReceivedRequests = "receivedRequests"
	Connections      = "connections"
)

// Top-level collections.
const (
	ProfilesCollection      = "profiles"
	AnnouncementsCollection = "announcements"
	FeedbacksCollection     = "feedbacks"
	UsersCollection         = "users"
)

// LedgerPath returns users/{uid}/{sub}.
func LedgerPath(uid, sub string) string {
	return UsersCollection + "/" + uid + "/" + sub
}
