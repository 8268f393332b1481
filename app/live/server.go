package live

import (
	"fmt"

	"linkup/auth"
	"linkup/components/chatroom"
	"linkup/components/notification"
	"linkup/components/relationship"
	"linkup/utils"

	"github.com/gin-gonic/gin"
)

// WsServer fans live state out to connected clients. Each client holds
// its own set of stream subscriptions; the server only tracks the
// connections themselves.
type WsServer struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	relations  *relationship.Engine
	rooms      *chatroom.Engine
	inbox      *notification.Fanout
}

// NewWebsocketServer creates a new WsServer type
func NewWebsocketServer(relations *relationship.Engine, rooms *chatroom.Engine, inbox *notification.Fanout) *WsServer {
	return &WsServer{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		relations:  relations,
		rooms:      rooms,
		inbox:      inbox,
	}
}

func (server *WsServer) InitRouteTo(rg *gin.Engine, devmode int) {
	rg.GET("/ws", auth.ValidUser, func(c *gin.Context) {
		ServeWs(server, c, devmode)
	})
}

// Run our websocket server, accepting client connections
func (server *WsServer) Run() {
	for {
		select {
		case client := <-server.register:
			server.registerClient(client)

		case client := <-server.unregister:
			server.unregisterClient(client)
		}
	}
}

func (server *WsServer) registerClient(client *Client) {
	server.clients[client] = true
	utils.Log().V(2).Info(fmt.Sprintf("registered client uid: %s", client.GetUID()))
	utils.Log().V(2).Info(fmt.Sprintf("client counts %d", len(server.clients)))
}

func (server *WsServer) unregisterClient(client *Client) {
	if _, ok := server.clients[client]; ok {
		delete(server.clients, client)
		utils.Log().V(2).Info(fmt.Sprintf("del connection %s", client.GetUID()))
	}
}

func (server *WsServer) findClientByID(ID string) []*Client {
	var foundClients []*Client
	for client := range server.clients {
		if client.GetUID() == ID {
			foundClients = append(foundClients, client)
		}
	}

	return foundClients
}
