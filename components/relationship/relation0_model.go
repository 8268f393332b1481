package relationship

import (
	"sort"
	"time"
)

// Relation is the state of an ordered pair (viewer, other).
type Relation = string

const (
	RelationNone      Relation = "none"
	RelationRequested Relation = "requested"
	RelationIncoming  Relation = "incoming"
	RelationFriends   Relation = "friends"
)

// FriendRequest lives under the deterministic id from_to, so a re-send of
// a pending request collapses onto the existing record.
type FriendRequest struct {
	ID        string    `json:"id" bson:"_id"`
	From      string    `json:"from" bson:"from"`
	FromName  string    `json:"from_name" bson:"from_name"`
	To        string    `json:"to" bson:"to"`
	ToName    string    `json:"to_name" bson:"to_name"`
	Seen      bool      `json:"seen" bson:"seen"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Friendship is ONE record per unordered pair, keyed by the pair key.
// Symmetry is structural: there is no second copy that could drift.
type Friendship struct {
	ID      string    `json:"id" bson:"_id"`
	Members []string  `json:"members" bson:"members"`
	Since   time.Time `json:"since" bson:"since"`
}

func (f *Friendship) PeerOf(uid string) string {
	for _, member := range f.Members {
		if member != uid {
			return member
		}
	}
	return ""
}

// Friend is a connection joined with the peer's profile.
type Friend struct {
	UID   string    `json:"uid"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Since time.Time `json:"since"`
}

// Profile holds the display attributes of a user record. Identity comes
// from the excluded auth collaborator; this component only reads and
// upserts what it needs for joins.
type Profile struct {
	UID       string    `json:"uid" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func sortedPair(aUID, bUID string) []string {
	pair := []string{aUID, bUID}
	sort.Strings(pair)
	return pair
}
