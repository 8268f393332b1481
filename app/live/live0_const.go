package live

import (
	"time"
)

const (
	// Max wait time when writing message to peer
	writeWait = 10 * time.Second

	// Max time till next pong from peer
	pongWait = 60 * time.Second

	// Send ping interval, must be less then pong wait time
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var newline = []byte{'\n'}

type Action = string

const (
	WatchIncomingAction     Action = "watch-incoming"
	WatchSentAction         Action = "watch-sent"
	WatchFriendsAction      Action = "watch-friends"
	WatchInboxAction        Action = "watch-inbox"
	WatchRoomsAction        Action = "watch-rooms"
	WatchRoomMessagesAction Action = "watch-room-messages"
	UnwatchAction           Action = "unwatch"
	SendMessageAction       Action = "send-message"
	SnapshotAction          Action = "snapshot"
)

// Snapshot is one server push: the full replacement state for the named
// subscription. Clients swap their local copy, they never patch it.
type Snapshot struct {
	Key  string      `json:"key"`
	Data interface{} `json:"data"`
}
