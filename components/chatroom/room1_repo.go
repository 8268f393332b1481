package chatroom

import (
	"context"
	"sort"

	"linkup/apperr"
	"linkup/store"
)

type Repo struct {
	records store.Records
}

func NewRepo(records store.Records) *Repo {
	return &Repo{records: records}
}

func (r *Repo) Room(ctx context.Context, id string) (*Room, error) {
	doc, err := r.records.Get(ctx, store.ChatRooms, id)
	if err != nil {
		return nil, err
	}
	room := &Room{}
	if err := store.Decode(doc, room); err != nil {
		return nil, apperr.Internal("decode room", err)
	}
	return room, nil
}

func (r *Repo) CreateRoom(ctx context.Context, room *Room) error {
	return r.records.Create(ctx, store.ChatRooms, room.ID, room)
}

// UpdateRoom applies mutate inside the store's optimistic
// read-modify-write, so two members flipping their own archive/delete
// flags concurrently cannot drop each other's writes.
func (r *Repo) UpdateRoom(ctx context.Context, id string, mutate func(*Room) error) (*Room, error) {
	var updated *Room
	err := r.records.Update(ctx, store.ChatRooms, id, func(doc store.Document) (store.Document, error) {
		room := &Room{}
		if err := store.Decode(doc, room); err != nil {
			return nil, apperr.Internal("decode room", err)
		}
		if err := mutate(room); err != nil {
			return nil, err
		}
		next, err := store.Encode(room)
		if err != nil {
			return nil, apperr.Internal("encode room", err)
		}
		updated = room
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Repo) DeleteRoom(ctx context.Context, id string) error {
	return r.records.Delete(ctx, store.ChatRooms, id)
}

func (r *Repo) RoomsOf(ctx context.Context, uid string) ([]*Room, error) {
	docs, err := r.records.Find(ctx, store.ChatRooms, store.Query{
		Contains: map[string]interface{}{"members": uid},
	})
	if err != nil {
		return nil, err
	}

	rooms := []*Room{}
	for _, doc := range docs {
		room := &Room{}
		if err := store.Decode(doc, room); err != nil {
			return nil, apperr.Internal("decode room", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (r *Repo) AddMessage(ctx context.Context, msg *Message) error {
	return r.records.Create(ctx, store.Messages, msg.ID, msg)
}

func (r *Repo) DeleteMessage(ctx context.Context, id string) error {
	return r.records.Delete(ctx, store.Messages, id)
}

// MessagesOf returns the room's messages oldest first.
func (r *Repo) MessagesOf(ctx context.Context, roomID string) ([]*Message, error) {
	docs, err := r.records.Find(ctx, store.Messages, store.Query{
		Eq: map[string]interface{}{"room": roomID},
	})
	if err != nil {
		return nil, err
	}

	messages := []*Message{}
	for _, doc := range docs {
		msg := &Message{}
		if err := store.Decode(doc, msg); err != nil {
			return nil, apperr.Internal("decode message", err)
		}
		messages = append(messages, msg)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (r *Repo) Records() store.Records {
	return r.records
}
