package chatroom

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"linkup/apperr"
	"linkup/store"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	//before
	fmt.Println("\nSTART UNIT TEST 'chatroom'")

	m.Run()

	//after
	fmt.Println("END UNIT TEST 'chatroom'")
}

func newTestEngine() *Engine {
	return NewEngine(store.NewMemRecords())
}

func Test_DirectRoomIDIsOrderInsensitive(t *testing.T) {
	asserts := assert.New(t)
	asserts.Equal(DirectRoomID("alice", "bob"), DirectRoomID("bob", "alice"))
	asserts.Equal("dm_alice_bob", DirectRoomID("bob", "alice"))
}

func Test_EnsureDirectRoomValidation(t *testing.T) {
	asserts := assert.New(t)
	engine := newTestEngine()
	ctx := context.Background()

	_, err := engine.EnsureDirectRoom(ctx, "", "bob")
	asserts.True(apperr.IsValidation(err))

	_, err = engine.EnsureDirectRoom(ctx, "alice", "alice")
	asserts.True(apperr.IsValidation(err))
}

func Test_ConcurrentEnsureDirectRoomYieldsOneRoom(t *testing.T) {
	asserts := assert.New(t)
	engine := newTestEngine()
	ctx := context.Background()

	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := 0; i < len(ids); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			id, err := engine.EnsureDirectRoom(ctx, a, b)
			asserts.NoError(err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		asserts.Equal(ids[0], id)
	}

	rooms, err := engine.ListVisibleRooms(ctx, "alice")
	asserts.NoError(err)
	asserts.Len(rooms, 1)
	asserts.Equal([]string{"alice", "bob"}, rooms[0].Members)
}

func Test_ArchiveHidesRoomForOneMemberOnly(t *testing.T) {
	asserts := assert.New(t)
	engine := newTestEngine()
	ctx := context.Background()

	roomID, err := engine.EnsureDirectRoom(ctx, "alice", "bob")
	asserts.NoError(err)

	asserts.NoError(engine.Archive(ctx, roomID, "alice"))

	visible, err := engine.ListVisibleRooms(ctx, "alice")
	asserts.NoError(err)
	asserts.Empty(visible)

	archived, err := engine.ListArchivedRooms(ctx, "alice")
	asserts.NoError(err)
	asserts.Len(archived, 1)

	peerVisible, err := engine.ListVisibleRooms(ctx, "bob")
	asserts.NoError(err)
	asserts.Len(peerVisible, 1)

	asserts.NoError(engine.Unarchive(ctx, roomID, "alice"))
	visible, err = engine.ListVisibleRooms(ctx, "alice")
	asserts.NoError(err)
	asserts.Len(visible, 1)
}

func Test_ArchiveByNonMemberIsPermissionError(t *testing.T) {
	asserts := assert.New(t)
	engine := newTestEngine()
	ctx := context.Background()

	roomID, err := engine.EnsureDirectRoom(ctx, "alice", "bob")
	asserts.NoError(err)

	err = engine.Archive(ctx, roomID, "mallory")
	asserts.True(apperr.IsPermission(err))
}

func Test_SoftDeleteConvergesToPurge(t *testing.T) {
	asserts := assert.New(t)
	engine := newTestEngine()
	ctx := context.Background()

	roomID, err := engine.EnsureDirectRoom(ctx, "alice", "bob")
	asserts.NoError(err)
	_, err = engine.SendMessage(ctx, roomID, "alice", "hello")
	asserts.NoError(err)

	asserts.NoError(engine.SoftDelete(ctx, roomID, "alice"))

	// room survives while one member still sees it
	_, err = engine.Room(ctx, roomID)
	asserts.NoError(err)

	visible, err := engine.ListVisibleRooms(ctx, "alice")
	asserts.NoError(err)
	asserts.Empty(visible)

	// sender who deleted can no longer post
	_, err = engine.SendMessage(ctx, roomID, "alice", "again")
	asserts.True(apperr.IsNotFound(err))

	asserts.NoError(engine.SoftDelete(ctx, roomID, "bob"))

	_, err = engine.Room(ctx, roomID)
	asserts.True(apperr.IsNotFound(err))
}

func Test_HardDeleteRemovesRoomAndMessages(t *testing.T) {
	asserts := assert.New(t)
	engine := newTestEngine()
	ctx := context.Background()

	roomID, err := engine.EnsureDirectRoom(ctx, "alice", "bob")
	asserts.NoError(err)
	_, err = engine.SendMessage(ctx, roomID, "alice", "hello")
	asserts.NoError(err)
	_, err = engine.SendMessage(ctx, roomID, "bob", "hi")
	asserts.NoError(err)

	err = engine.HardDelete(ctx, roomID, "mallory")
	asserts.True(apperr.IsPermission(err))

	asserts.NoError(engine.HardDelete(ctx, roomID, "alice"))

	_, err = engine.Room(ctx, roomID)
	asserts.True(apperr.IsNotFound(err))

	docs, err := engine.repo.Records().Find(ctx, store.Messages, store.Query{
		Eq: map[string]interface{}{"room": roomID},
	})
	asserts.NoError(err)
	asserts.Empty(docs)
}

func Test_SendMessageRules(t *testing.T) {
	asserts := assert.New(t)
	engine := newTestEngine()
	ctx := context.Background()

	roomID, err := engine.EnsureDirectRoom(ctx, "alice", "bob")
	asserts.NoError(err)

	_, err = engine.SendMessage(ctx, roomID, "alice", "   ")
	asserts.True(apperr.IsValidation(err))

	_, err = engine.SendMessage(ctx, roomID, "mallory", "hey")
	asserts.True(apperr.IsPermission(err))

	msg, err := engine.SendMessage(ctx, roomID, "alice", "hello")
	asserts.NoError(err)
	asserts.NotEmpty(msg.ID)

	room, err := engine.Room(ctx, roomID)
	asserts.NoError(err)
	asserts.NotNil(room.LastMessageAt)
	asserts.Equal(msg.CreatedAt.Unix(), room.LastMessageAt.Unix())
}

func Test_ListMessagesOldestFirstMembersOnly(t *testing.T) {
	asserts := assert.New(t)
	engine := newTestEngine()
	ctx := context.Background()

	roomID, err := engine.EnsureDirectRoom(ctx, "alice", "bob")
	asserts.NoError(err)

	first, err := engine.SendMessage(ctx, roomID, "alice", "one")
	asserts.NoError(err)
	second, err := engine.SendMessage(ctx, roomID, "bob", "two")
	asserts.NoError(err)

	_, err = engine.ListMessages(ctx, roomID, "mallory")
	asserts.True(apperr.IsPermission(err))

	messages, err := engine.ListMessages(ctx, roomID, "bob")
	asserts.NoError(err)
	asserts.Len(messages, 2)
	asserts.Equal(first.ID, messages[0].ID)
	asserts.Equal(second.ID, messages[1].ID)
}

func Test_ListVisibleRoomsOrdering(t *testing.T) {
	asserts := assert.New(t)
	engine := newTestEngine()
	ctx := context.Background()

	quiet, err := engine.EnsureDirectRoom(ctx, "alice", "carol")
	asserts.NoError(err)
	old, err := engine.EnsureDirectRoom(ctx, "alice", "bob")
	asserts.NoError(err)
	busy, err := engine.EnsureDirectRoom(ctx, "alice", "dave")
	asserts.NoError(err)

	_, err = engine.SendMessage(ctx, old, "bob", "old news")
	asserts.NoError(err)
	_, err = engine.SendMessage(ctx, busy, "dave", "fresh")
	asserts.NoError(err)

	rooms, err := engine.ListVisibleRooms(ctx, "alice")
	asserts.NoError(err)
	asserts.Len(rooms, 3)
	asserts.Equal(busy, rooms[0].ID)
	asserts.Equal(old, rooms[1].ID)
	// no messages yet sorts last
	asserts.Equal(quiet, rooms[2].ID)
}
