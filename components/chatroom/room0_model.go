package chatroom

import (
	"sort"
	"time"

	"linkup/utils"
)

// Room is a 1:1 chat room. Its id is derived from the pair key, so two
// concurrent creations for the same pair collapse onto one record.
type Room struct {
	ID            string          `json:"id" bson:"_id"`
	PairKey       string          `json:"pair_key" bson:"pair_key"`
	Members       []string        `json:"members" bson:"members"`
	CreatedAt     time.Time       `json:"created_at" bson:"created_at"`
	LastMessageAt *time.Time      `json:"last_message_at,omitempty" bson:"last_message_at,omitempty"`
	ArchivedBy    map[string]bool `json:"archived_by" bson:"archived_by"`
	DeletedBy     map[string]bool `json:"deleted_by" bson:"deleted_by"`
	CanHardDelete []string        `json:"can_hard_delete" bson:"can_hard_delete"`
}

func (r *Room) HasMember(uid string) bool {
	return utils.StringInSlice(uid, r.Members)
}

// deletedByAll reports whether every member has opted into deletion, the
// point where a soft delete cascades to a hard delete.
func (r *Room) deletedByAll() bool {
	for _, member := range r.Members {
		if !r.DeletedBy[member] {
			return false
		}
	}
	return len(r.Members) > 0
}

// DirectRoomID is the deterministic room id for an unordered user pair.
func DirectRoomID(aUID, bUID string) string {
	return "dm_" + utils.PairKey(aUID, bUID)
}

// Message is an append-only child of a room, ordered by creation time.
type Message struct {
	ID        string    `json:"id" bson:"_id"`
	RoomID    string    `json:"room" bson:"room"`
	SenderID  string    `json:"sender" bson:"sender"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func sortedPair(aUID, bUID string) []string {
	pair := []string{aUID, bUID}
	sort.Strings(pair)
	return pair
}
