package chatroom

import (
	"context"
	"sort"
	"strings"
	"time"

	"linkup/apperr"
	"linkup/store"
	"linkup/utils"
)

// Engine owns room identity, membership and the archive/delete state
// machine.
type Engine struct {
	repo *Repo
}

func NewEngine(records store.Records) *Engine {
	return &Engine{repo: NewRepo(records)}
}

// EnsureDirectRoom returns the one room for the unordered pair, creating
// it on first use. The deterministic room id makes concurrent calls from
// both sides collapse onto a single record: the loser of the create race
// just gets the winner's id back.
func (e *Engine) EnsureDirectRoom(ctx context.Context, aUID, bUID string) (string, error) {
	if aUID == "" || bUID == "" {
		return "", apperr.Validation("user id can not empty")
	}
	if aUID == bUID {
		return "", apperr.Validation("a direct room needs two different users")
	}

	id := DirectRoomID(aUID, bUID)
	if _, err := e.repo.Room(ctx, id); err == nil {
		return id, nil
	} else if !apperr.IsNotFound(err) {
		return "", err
	}

	room := &Room{
		ID:            id,
		PairKey:       utils.PairKey(aUID, bUID),
		Members:       sortedPair(aUID, bUID),
		CreatedAt:     time.Now().UTC(),
		ArchivedBy:    map[string]bool{},
		DeletedBy:     map[string]bool{},
		CanHardDelete: sortedPair(aUID, bUID),
	}
	err := e.repo.CreateRoom(ctx, room)
	if apperr.IsConflict(err) {
		return id, nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Archive hides the room from one member's list. The peer's view and the
// message history are untouched.
func (e *Engine) Archive(ctx context.Context, roomID, uid string) error {
	_, err := e.repo.UpdateRoom(ctx, roomID, func(room *Room) error {
		if !room.HasMember(uid) {
			return apperr.Permission("not a member of this room")
		}
		if room.ArchivedBy == nil {
			room.ArchivedBy = map[string]bool{}
		}
		room.ArchivedBy[uid] = true
		return nil
	})
	return err
}

func (e *Engine) Unarchive(ctx context.Context, roomID, uid string) error {
	_, err := e.repo.UpdateRoom(ctx, roomID, func(room *Room) error {
		if !room.HasMember(uid) {
			return apperr.Permission("not a member of this room")
		}
		delete(room.ArchivedBy, uid)
		return nil
	})
	return err
}

// SoftDelete hides the room for one member. Once every member has opted
// in the room and its messages are removed immediately, not by a
// deferred job.
func (e *Engine) SoftDelete(ctx context.Context, roomID, uid string) error {
	updated, err := e.repo.UpdateRoom(ctx, roomID, func(room *Room) error {
		if !room.HasMember(uid) {
			return apperr.Permission("not a member of this room")
		}
		if room.DeletedBy == nil {
			room.DeletedBy = map[string]bool{}
		}
		room.DeletedBy[uid] = true
		return nil
	})
	if err != nil {
		return err
	}

	if updated.deletedByAll() {
		return e.purge(ctx, updated.ID)
	}
	return nil
}

// HardDelete removes the room and every message for everyone, right now.
func (e *Engine) HardDelete(ctx context.Context, roomID, uid string) error {
	room, err := e.repo.Room(ctx, roomID)
	if err != nil {
		return err
	}
	if !utils.StringInSlice(uid, room.CanHardDelete) {
		return apperr.Permission("not allowed to delete this room for everyone")
	}
	return e.purge(ctx, roomID)
}

func (e *Engine) purge(ctx context.Context, roomID string) error {
	messages, err := e.repo.MessagesOf(ctx, roomID)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		if err := e.repo.DeleteMessage(ctx, msg.ID); err != nil && !apperr.IsNotFound(err) {
			return err
		}
	}

	err = e.repo.DeleteRoom(ctx, roomID)
	if apperr.IsNotFound(err) {
		// a concurrent cascade got there first
		return nil
	}
	return err
}

// SendMessage appends to the room and bumps its ordering timestamp.
func (e *Engine) SendMessage(ctx context.Context, roomID, senderID, text string) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("message text can not empty")
	}

	room, err := e.repo.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasMember(senderID) {
		return nil, apperr.Permission("not a member of this room")
	}
	if room.DeletedBy[senderID] {
		return nil, apperr.NotFound("room was deleted by this user")
	}

	msg := &Message{
		ID:        utils.NewCUID(),
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.repo.AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	_, err = e.repo.UpdateRoom(ctx, roomID, func(room *Room) error {
		at := msg.CreatedAt
		room.LastMessageAt = &at
		return nil
	})
	if err != nil && !apperr.IsNotFound(err) {
		return nil, err
	}
	return msg, nil
}

// ListVisibleRooms returns the rooms a user still sees, most recent
// conversation first, rooms without messages last.
func (e *Engine) ListVisibleRooms(ctx context.Context, uid string) ([]*Room, error) {
	if uid == "" {
		return nil, apperr.Validation("uid can not empty")
	}

	all, err := e.repo.RoomsOf(ctx, uid)
	if err != nil {
		return nil, err
	}

	rooms := []*Room{}
	for _, room := range all {
		if room.ArchivedBy[uid] || room.DeletedBy[uid] {
			continue
		}
		rooms = append(rooms, room)
	}
	sortRooms(rooms)
	return rooms, nil
}

// ListArchivedRooms returns the rooms the user archived but did not
// delete.
func (e *Engine) ListArchivedRooms(ctx context.Context, uid string) ([]*Room, error) {
	if uid == "" {
		return nil, apperr.Validation("uid can not empty")
	}

	all, err := e.repo.RoomsOf(ctx, uid)
	if err != nil {
		return nil, err
	}

	rooms := []*Room{}
	for _, room := range all {
		if !room.ArchivedBy[uid] || room.DeletedBy[uid] {
			continue
		}
		rooms = append(rooms, room)
	}
	sortRooms(rooms)
	return rooms, nil
}

// ListMessages returns the room history oldest first, members only.
func (e *Engine) ListMessages(ctx context.Context, roomID, uid string) ([]*Message, error) {
	room, err := e.repo.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasMember(uid) {
		return nil, apperr.Permission("not a member of this room")
	}
	return e.repo.MessagesOf(ctx, roomID)
}

func (e *Engine) Room(ctx context.Context, roomID string) (*Room, error) {
	return e.repo.Room(ctx, roomID)
}

func (e *Engine) WatchVisibleRooms(uid string) (<-chan []*Room, store.CancelFunc) {
	return store.Stream(e.repo.Records(), []string{store.ChatRooms}, func() ([]*Room, error) {
		return e.ListVisibleRooms(context.Background(), uid)
	})
}

func (e *Engine) WatchRoomMessages(roomID string) (<-chan []*Message, store.CancelFunc) {
	return store.Stream(e.repo.Records(), []string{store.Messages}, func() ([]*Message, error) {
		return e.repo.MessagesOf(context.Background(), roomID)
	})
}

func sortRooms(rooms []*Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		a, b := rooms[i].LastMessageAt, rooms[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
