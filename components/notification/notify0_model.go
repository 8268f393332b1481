package notification

import "time"

const (
	TypeFriendRequest   = "friend_request"
	TypeRequestAccepted = "request_accepted"
)

// Entry is one inbox notification. Entries of type friend_request are
// never stored: the pending request record is their single source of
// truth and they are synthesized into the inbox at read time.
type Entry struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user" bson:"user"`
	Type      string    `json:"type" bson:"type"`
	FromID    string    `json:"from" bson:"from"`
	Message   string    `json:"message" bson:"message"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	Read      bool      `json:"read" bson:"read"`
	Archived  bool      `json:"archived" bson:"archived"`
}

// Event is what the engines publish into the fanout when something
// notification-worthy happens.
type Event struct {
	UserID  string `json:"user"`
	Type    string `json:"type"`
	FromID  string `json:"from"`
	Message string `json:"message"`
}

// Badge carries the two independently resettable unread counters: pending
// requests not yet seen, and stored notifications not yet read. Total is
// their sum, for the single bell indicator.
type Badge struct {
	Requests      int `json:"requests"`
	Notifications int `json:"notifications"`
	Total         int `json:"total"`
}

// incomingRequest is the slice of a friend request record the inbox
// synthesis needs. Field tags mirror the relationship component's model.
type incomingRequest struct {
	ID        string    `bson:"_id"`
	From      string    `bson:"from"`
	FromName  string    `bson:"from_name"`
	Seen      bool      `bson:"seen"`
	CreatedAt time.Time `bson:"created_at"`
}
