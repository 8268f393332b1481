package relationship

import (
	"context"
	"fmt"
	"testing"

	"linkup/apperr"
	"linkup/components/chatroom"
	"linkup/components/notification"
	"linkup/store"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	//before
	fmt.Println("\nSTART UNIT TEST 'relationship'")

	m.Run()

	//after
	fmt.Println("END UNIT TEST 'relationship'")
}

type testRig struct {
	records *store.MemRecords
	engine  *Engine
	rooms   *chatroom.Engine
	fanout  *notification.Fanout
}

func newTestRig() *testRig {
	records := store.NewMemRecords()
	rooms := chatroom.NewEngine(records)
	fanout := notification.NewFanout(records)
	return &testRig{
		records: records,
		engine:  NewEngine(records, rooms, fanout),
		rooms:   rooms,
		fanout:  fanout,
	}
}

func (rig *testRig) close() {
	rig.fanout.Stop()
}

func Test_SendRequestIsIdempotentWhilePending(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	first, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)
	asserts.Equal("alice_bob", first.ID)

	again, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)
	asserts.Equal(first.ID, again.ID)
	asserts.Equal(first.CreatedAt.Unix(), again.CreatedAt.Unix())

	incoming, err := rig.engine.ListIncoming(ctx, "bob")
	asserts.NoError(err)
	asserts.Len(incoming, 1)
}

func Test_SendRequestValidation(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	_, err := rig.engine.SendRequest(ctx, "alice", "alice", "Alice", "Alice")
	asserts.True(apperr.IsValidation(err))

	_, err = rig.engine.SendRequest(ctx, "", "bob", "", "Bob")
	asserts.True(apperr.IsValidation(err))
}

func Test_ReversePendingRequestConflicts(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	_, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)

	_, err = rig.engine.SendRequest(ctx, "bob", "alice", "Bob", "Alice")
	asserts.True(apperr.IsConflict(err))
}

func Test_SendRequestToFriendConflicts(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	_, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)
	_, err = rig.engine.AcceptRequest(ctx, "bob", "alice")
	asserts.NoError(err)

	_, err = rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.True(apperr.IsConflict(err))
	_, err = rig.engine.SendRequest(ctx, "bob", "alice", "Bob", "Alice")
	asserts.True(apperr.IsConflict(err))
}

func Test_AcceptCreatesSymmetricFriendshipAndRoom(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	_, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)

	roomID, err := rig.engine.AcceptRequest(ctx, "bob", "alice")
	asserts.NoError(err)
	asserts.Equal(chatroom.DirectRoomID("alice", "bob"), roomID)

	// both directions observe friends
	rel, err := rig.engine.Relation(ctx, "alice", "bob")
	asserts.NoError(err)
	asserts.Equal(RelationFriends, rel)
	rel, err = rig.engine.Relation(ctx, "bob", "alice")
	asserts.NoError(err)
	asserts.Equal(RelationFriends, rel)

	// request record is gone
	incoming, err := rig.engine.ListIncoming(ctx, "bob")
	asserts.NoError(err)
	asserts.Empty(incoming)

	room, err := rig.rooms.Room(ctx, roomID)
	asserts.NoError(err)
	asserts.Equal([]string{"alice", "bob"}, room.Members)

	// the sender gets an acceptance notification
	rig.fanout.Stop()
	entries, err := rig.fanout.ListInbox(ctx, "alice")
	asserts.NoError(err)
	asserts.Len(entries, 1)
	asserts.Equal(notification.TypeRequestAccepted, entries[0].Type)
	asserts.Equal("bob", entries[0].FromID)
}

func Test_AcceptUnknownRequestIsNotFound(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()

	_, err := rig.engine.AcceptRequest(context.Background(), "bob", "alice")
	asserts.True(apperr.IsNotFound(err))
}

func Test_DeclineLeavesNoTrace(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	_, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)

	asserts.NoError(rig.engine.DeclineRequest(ctx, "bob", "alice"))

	rel, err := rig.engine.Relation(ctx, "alice", "bob")
	asserts.NoError(err)
	asserts.Equal(RelationNone, rel)

	rooms, err := rig.rooms.ListVisibleRooms(ctx, "bob")
	asserts.NoError(err)
	asserts.Empty(rooms)

	// the pair can try again
	_, err = rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)
}

func Test_RemoveConnectionKeepsRoom(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	_, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)
	roomID, err := rig.engine.AcceptRequest(ctx, "bob", "alice")
	asserts.NoError(err)

	asserts.NoError(rig.engine.RemoveConnection(ctx, "alice", "bob"))

	rel, err := rig.engine.Relation(ctx, "bob", "alice")
	asserts.NoError(err)
	asserts.Equal(RelationNone, rel)

	// rooms persist independently of friendship status
	_, err = rig.rooms.Room(ctx, roomID)
	asserts.NoError(err)
}

func Test_RelationDirectionality(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	_, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)

	rel, err := rig.engine.Relation(ctx, "alice", "bob")
	asserts.NoError(err)
	asserts.Equal(RelationRequested, rel)

	rel, err = rig.engine.Relation(ctx, "bob", "alice")
	asserts.NoError(err)
	asserts.Equal(RelationIncoming, rel)

	rel, err = rig.engine.Relation(ctx, "alice", "carol")
	asserts.NoError(err)
	asserts.Equal(RelationNone, rel)
}

func Test_MarkIncomingSeenResetsRequestBadge(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	_, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)
	_, err = rig.engine.SendRequest(ctx, "carol", "bob", "Carol", "Bob")
	asserts.NoError(err)

	badge, err := rig.fanout.UnreadCount(ctx, "bob")
	asserts.NoError(err)
	asserts.Equal(2, badge.Requests)

	asserts.NoError(rig.engine.MarkIncomingSeen(ctx, "bob"))

	badge, err = rig.fanout.UnreadCount(ctx, "bob")
	asserts.NoError(err)
	asserts.Equal(0, badge.Requests)

	// the requests themselves are still pending
	incoming, err := rig.engine.ListIncoming(ctx, "bob")
	asserts.NoError(err)
	asserts.Len(incoming, 2)
	for _, req := range incoming {
		asserts.True(req.Seen)
	}
}

func Test_ListFriendsJoinsProfiles(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	asserts.NoError(rig.engine.SaveProfile(ctx, &Profile{UID: "bob", Name: "Bob", Email: "bob@example.com"}))

	_, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "")
	asserts.NoError(err)
	_, err = rig.engine.AcceptRequest(ctx, "bob", "alice")
	asserts.NoError(err)

	friends, err := rig.engine.ListFriends(ctx, "alice")
	asserts.NoError(err)
	asserts.Len(friends, 1)
	asserts.Equal("bob", friends[0].UID)
	asserts.Equal("Bob", friends[0].Name)
	asserts.Equal("bob@example.com", friends[0].Email)

	// the side without a stored profile falls back
	friends, err = rig.engine.ListFriends(ctx, "bob")
	asserts.NoError(err)
	asserts.Len(friends, 1)
	asserts.Equal("Unknown User", friends[0].Name)
}

func Test_FullRequestToRoomLifecycle(t *testing.T) {
	asserts := assert.New(t)
	rig := newTestRig()
	defer rig.close()
	ctx := context.Background()

	_, err := rig.engine.SendRequest(ctx, "alice", "bob", "Alice", "Bob")
	asserts.NoError(err)

	badge, err := rig.fanout.UnreadCount(ctx, "bob")
	asserts.NoError(err)
	asserts.Equal(1, badge.Requests)

	asserts.NoError(rig.engine.MarkIncomingSeen(ctx, "bob"))
	badge, err = rig.fanout.UnreadCount(ctx, "bob")
	asserts.NoError(err)
	asserts.Equal(0, badge.Requests)

	roomID, err := rig.engine.AcceptRequest(ctx, "bob", "alice")
	asserts.NoError(err)

	_, err = rig.rooms.SendMessage(ctx, roomID, "alice", "hi bob")
	asserts.NoError(err)

	asserts.NoError(rig.rooms.Archive(ctx, roomID, "bob"))
	visible, err := rig.rooms.ListVisibleRooms(ctx, "bob")
	asserts.NoError(err)
	asserts.Empty(visible)

	asserts.NoError(rig.rooms.HardDelete(ctx, roomID, "alice"))
	_, err = rig.rooms.Room(ctx, roomID)
	asserts.True(apperr.IsNotFound(err))
}
