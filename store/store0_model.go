package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection names of the persisted layout. Relationship state is kept as
// indexed records under deterministic ids (request id, pair key) rather
// than arrays embedded in the user document, so membership checks are key
// lookups and concurrent writers never race on one shared array field.
const (
	Users          = "users"
	FriendRequests = "friendRequests"
	Friendships    = "friendships"
	Notifications  = "notifications"
	ChatRooms      = "chatRooms"
	Messages       = "messages"
)

// Document is a stored record. Every document carries a "rev" int64 bumped
// on each write; Update guards its write on the rev it read.
type Document = bson.M

// Event announces that a record changed. Watchers treat it as a trigger to
// re-read the state they care about, not as a delta.
type Event struct {
	Collection string
	ID         string
	Deleted    bool
}

// Query supports the two filter shapes the engines need: field equality
// and array membership.
type Query struct {
	Eq       map[string]interface{}
	Contains map[string]interface{}
}

// Records is the record-store contract. Both backends publish an Event
// after every successful mutation.
type Records interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Create(ctx context.Context, collection, id string, v interface{}) error
	Set(ctx context.Context, collection, id string, fields Document, merge bool) error
	Update(ctx context.Context, collection, id string, mutate func(Document) (Document, error)) error
	Delete(ctx context.Context, collection, id string) error
	Find(ctx context.Context, collection string, q Query) ([]Document, error)
	Watch(collection string) (<-chan Event, func())
}

// updateTries bounds the optimistic read-modify-write retry loop before a
// conflict is surfaced to the caller.
const updateTries = 3

func Encode(v interface{}) (Document, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func Decode(doc Document, v interface{}) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, v)
}

func cloneDoc(doc Document) Document {
	out, err := Encode(doc)
	if err != nil {
		// documents come from a bson roundtrip already, re-encoding them
		// cannot fail
		panic(err)
	}
	return out
}

func docRev(doc Document) int64 {
	switch rev := doc["rev"].(type) {
	case int64:
		return rev
	case int32:
		return int64(rev)
	case int:
		return int64(rev)
	default:
		return 0
	}
}
