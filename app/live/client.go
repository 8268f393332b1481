package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"linkup/auth"
	"linkup/components/chatroom"
	"linkup/components/notification"
	"linkup/components/relationship"
	"linkup/jsonrpc2"
	"linkup/store"
	"linkup/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Client represents the websocket client at the server
type Client struct {
	// The actual websocket connection.
	conn     *websocket.Conn
	wsServer *WsServer
	send     chan []byte
	uid      string
	mu       sync.Mutex
	subs     map[string]store.CancelFunc
	disposed bool
}

func newClient(conn *websocket.Conn, wsServer *WsServer, uid string) *Client {
	return &Client{
		conn:     conn,
		wsServer: wsServer,
		send:     make(chan []byte, 256),
		uid:      uid,
		subs:     make(map[string]store.CancelFunc),
	}
}

// ServeWs handles websocket requests from clients requests.
func ServeWs(wsServer *WsServer, c *gin.Context, devmode int) {
	userCtxValue, ok := c.Get("validuser")
	if !ok {
		utils.Log().Info("Not authenticated")
		return
	}

	user := userCtxValue.(*auth.Claims)
	if user.IsExpired() {
		utils.Log().Info("User token expired")
		return
	}

	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	if devmode > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return strings.HasPrefix(origin, "http://192.168.") || strings.HasPrefix(origin, "http://localhost")
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Log().Error(err, "error while upgrading to websocket")
		return
	}

	client := newClient(conn, wsServer, user.GetUID())

	go client.writeThread()
	go client.readThread()

	wsServer.register <- client
	utils.Log().Info("ServeWs " + user.GetUID())
}

func (me *Client) GetUID() string {
	return me.uid
}

func (me *Client) readThread() {
	defer me.disconnect()

	me.conn.SetReadLimit(maxMessageSize)
	me.conn.SetReadDeadline(time.Now().Add(pongWait))
	me.conn.SetPongHandler(func(string) error {
		// keep connection alive
		me.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Start endless read loop, waiting for messages from client
	for {
		_, jsonMessage, err := me.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.Log().Error(err, "unexpected websocket close error")
				break
			}

			if strings.Contains(err.Error(), "close") {
				utils.Log().V(2).Info(fmt.Sprintf("client %s close connection", me.uid))
				break
			}

			utils.Log().Error(err, "error while reading message")
			break
		}

		me.handleNewMessage(jsonMessage)

		if me.disposed {
			break
		}
	}
}

func (me *Client) writeThread() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		me.conn.Close()
	}()
	for {
		select {
		case message, ok := <-me.send:
			me.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The WsServer closed the channel.
				me.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := me.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Attach queued snapshots to the current websocket message.
			n := len(me.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-me.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			me.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := me.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (me *Client) disconnect() {
	utils.Log().Info("disconnect " + me.uid)

	me.mu.Lock()
	me.disposed = true
	for key, cancel := range me.subs {
		cancel()
		delete(me.subs, key)
	}
	me.mu.Unlock()

	me.wsServer.unregister <- me
	close(me.send)
	me.conn.Close()
}

func (me *Client) handleNewMessage(jsonMessage []byte) {
	utils.Log().V(2).Info("handleNewMessage " + string(jsonMessage))
	var rpc jsonrpc2.RPCRequest
	if err := json.Unmarshal(jsonMessage, &rpc); err != nil {
		utils.Log().Error(err, "error on unmarshal JSON rpc")
		return
	}

	switch rpc.Method {
	case WatchIncomingAction:
		subscribe(me, WatchIncomingAction, func() (<-chan []*relationship.FriendRequest, store.CancelFunc) {
			return me.wsServer.relations.WatchIncoming(me.uid)
		})

	case WatchSentAction:
		subscribe(me, WatchSentAction, func() (<-chan []*relationship.FriendRequest, store.CancelFunc) {
			return me.wsServer.relations.WatchSent(me.uid)
		})

	case WatchFriendsAction:
		subscribe(me, WatchFriendsAction, func() (<-chan []*relationship.Friend, store.CancelFunc) {
			return me.wsServer.relations.WatchFriends(me.uid)
		})

	case WatchInboxAction:
		subscribe(me, WatchInboxAction, func() (<-chan []*notification.Entry, store.CancelFunc) {
			return me.wsServer.inbox.WatchInbox(me.uid)
		})

	case WatchRoomsAction:
		subscribe(me, WatchRoomsAction, func() (<-chan []*chatroom.Room, store.CancelFunc) {
			return me.wsServer.rooms.WatchVisibleRooms(me.uid)
		})

	case WatchRoomMessagesAction:
		me.handleWatchRoomMessages(&rpc)

	case UnwatchAction:
		me.handleUnwatch(&rpc)

	case SendMessageAction:
		me.handleSendMessage(&rpc)

	default:
		me.replyError(&rpc, http.StatusMethodNotAllowed, fmt.Errorf("unknown method %s", rpc.Method))
	}
}

type roomParams struct {
	Room string `json:"room"`
}

type sendParams struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

type unwatchParams struct {
	Key string `json:"key"`
}

// handleWatchRoomMessages guards the stream behind a membership check:
// the snapshot fetch itself does not re-verify on every push.
func (me *Client) handleWatchRoomMessages(rpc *jsonrpc2.RPCRequest) {
	var params roomParams
	if err := json.Unmarshal(rpc.Params, &params); err != nil {
		me.replyError(rpc, http.StatusBadRequest, err)
		return
	}

	room, err := me.wsServer.rooms.Room(context.Background(), params.Room)
	if err != nil {
		me.replyError(rpc, http.StatusNotFound, err)
		return
	}
	if !room.HasMember(me.uid) {
		me.replyError(rpc, http.StatusForbidden, fmt.Errorf("not a member of room %s", params.Room))
		return
	}

	key := WatchRoomMessagesAction + ":" + params.Room
	subscribe(me, key, func() (<-chan []*chatroom.Message, store.CancelFunc) {
		return me.wsServer.rooms.WatchRoomMessages(params.Room)
	})
}

func (me *Client) handleUnwatch(rpc *jsonrpc2.RPCRequest) {
	var params unwatchParams
	if err := json.Unmarshal(rpc.Params, &params); err != nil {
		me.replyError(rpc, http.StatusBadRequest, err)
		return
	}

	me.mu.Lock()
	cancel, ok := me.subs[params.Key]
	if ok {
		delete(me.subs, params.Key)
	}
	me.mu.Unlock()

	if ok {
		cancel()
		utils.Log().V(2).Info(fmt.Sprintf("%s unwatch %s", me.uid, params.Key))
	}
}

func (me *Client) handleSendMessage(rpc *jsonrpc2.RPCRequest) {
	var params sendParams
	if err := json.Unmarshal(rpc.Params, &params); err != nil {
		me.replyError(rpc, http.StatusBadRequest, err)
		return
	}

	msg, err := me.wsServer.rooms.SendMessage(context.Background(), params.Room, me.uid, params.Text)
	if err != nil {
		me.replyError(rpc, http.StatusBadRequest, err)
		return
	}

	res, err := jsonrpc2.Reply(rpc.ID, msg)
	if err != nil {
		utils.Log().Error(err, "error while create jsonrpc2 reply")
		return
	}
	me.SendMsg(res.Encode())
}

// subscribe opens a snapshot stream once per key and pumps every
// replacement state to the peer until the stream or the connection ends.
func subscribe[T any](me *Client, key string, open func() (<-chan T, store.CancelFunc)) {
	me.mu.Lock()
	if me.disposed {
		me.mu.Unlock()
		return
	}
	if _, ok := me.subs[key]; ok {
		me.mu.Unlock()
		return
	}
	ch, cancel := open()
	me.subs[key] = cancel
	me.mu.Unlock()

	go func() {
		for snapshot := range ch {
			m, err := jsonrpc2.Notify(SnapshotAction, Snapshot{Key: key, Data: snapshot})
			if err != nil {
				utils.Log().Error(err, "error while create jsonrpc2 notify")
				continue
			}
			me.SendMsg(m.Encode())
		}
	}()
}

func (me *Client) replyError(rpc *jsonrpc2.RPCRequest, code int, err error) {
	utils.Log().V(2).Info(fmt.Sprintf("ReplyWithError, %s", err))
	res, rerr := jsonrpc2.ReplyWithError(rpc.ID, code, err)
	if rerr != nil {
		utils.Log().Error(rerr, "error while sending reply with error")
		return
	}
	me.SendMsg(res.Encode())
}

func (me *Client) SendMsg(msg []byte) {
	me.mu.Lock()
	if me.disposed {
		me.mu.Unlock()
		return
	}
	defer me.mu.Unlock()

	select {
	case me.send <- msg:
	default:
		utils.Log().Error(nil, "send msg error, channel full")
	}
}
