package chatroom

import (
	"encoding/json"
	"fmt"
	"net/http"

	"linkup/apperr"
	"linkup/auth"
	"linkup/jsonrpc2"
	"linkup/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/juju/ratelimit"
)

var Logger logr.Logger = logr.Discard()

type RoomRoute struct {
	engine  *Engine
	limiter *ratelimit.Bucket
}

func NewRoomRoute(engine *Engine, l logr.Logger, limiter *ratelimit.Bucket) RoomRoute {
	Logger = l
	Logger.V(2).Info("NewRoomRoute created")
	return RoomRoute{engine, limiter}
}

func (me *RoomRoute) InitRouteTo(rg *gin.Engine) {
	router := rg.Group("/rooms")
	router.POST("/rpc", me.RateLimit, auth.ValidUser, me.RPCHandle)
}

func (me *RoomRoute) RateLimit(ctx *gin.Context) {
	if me.limiter.TakeAvailable(1) == 0 {
		ctx.AbortWithStatus(http.StatusTooManyRequests)
		return
	}
	ctx.Next()
}

func (me *RoomRoute) GetEngine() *Engine {
	return me.engine
}

func (me *RoomRoute) RPCHandle(ctx *gin.Context) {
	var jreq jsonrpc2.RPCRequest
	if err := ctx.ShouldBindJSON(&jreq); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "jsonrpc fail", "message": err.Error()})
		return
	}

	Logger.V(2).Info(fmt.Sprintf("RPCHandle %s", jreq.Method))

	jres := &jsonrpc2.RPCResponse{
		JSONRPC: "2.0",
		ID:      jreq.ID,
	}

	statuscode := http.StatusBadRequest
	switch jreq.Method {
	case "EnsureDirectRoom":
		statuscode = me.method_EnsureDirectRoom(ctx, &jreq, jres)
	case "Archive":
		statuscode = me.method_Archive(ctx, &jreq, jres)
	case "Unarchive":
		statuscode = me.method_Unarchive(ctx, &jreq, jres)
	case "SoftDelete":
		statuscode = me.method_SoftDelete(ctx, &jreq, jres)
	case "HardDelete":
		statuscode = me.method_HardDelete(ctx, &jreq, jres)
	case "SendMessage":
		statuscode = me.method_SendMessage(ctx, &jreq, jres)
	case "ListVisibleRooms":
		statuscode = me.method_ListVisibleRooms(ctx, &jreq, jres)
	case "ListArchivedRooms":
		statuscode = me.method_ListArchivedRooms(ctx, &jreq, jres)
	case "ListMessages":
		statuscode = me.method_ListMessages(ctx, &jreq, jres)
	default:
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}

	if jres.Error != nil {
		Logger.Error(fmt.Errorf(jres.Error.Message), "response with error")
	}
	ctx.JSON(statuscode, jres)
}

func actor(ctx *gin.Context, uid string, jres *jsonrpc2.RPCResponse) (*auth.Claims, int, bool) {
	vuser, ok := ctx.Get("validuser")
	if !ok {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "unauthorized"}
		return nil, http.StatusUnauthorized, false
	}

	validuser := vuser.(*auth.Claims)
	if validuser.IsExpired() {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "session expired"}
		return nil, http.StatusUnauthorized, false
	}

	if validuser.GetUID() != uid {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusForbidden, Message: "user uid did not match"}
		return nil, http.StatusOK, false
	}
	return validuser, http.StatusOK, true
}

func rpcError(err error) *jsonrpc2.RPCError {
	return &jsonrpc2.RPCError{Code: apperr.KindOf(err).HTTPStatus(), Message: err.Error()}
}

type EnsureRoomParams struct {
	UID  string `json:"uid"`
	Peer string `json:"peer"`
}

func (me *RoomRoute) method_EnsureDirectRoom(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *EnsureRoomParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	roomID, err := me.engine.EnsureDirectRoom(ctx.Request.Context(), params.UID, params.Peer)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(gin.H{"room": roomID})
	return http.StatusOK
}

type RoomActionParams struct {
	UID  string `json:"uid"`
	Room string `json:"room"`
}

func (me *RoomRoute) roomAction(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse,
	action func(uid, room string) error) int {
	var params *RoomActionParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	if err := action(params.UID, params.Room); err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(gin.H{"room": params.Room, "ok": true})
	return http.StatusOK
}

func (me *RoomRoute) method_Archive(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	return me.roomAction(ctx, jreq, jres, func(uid, room string) error {
		return me.engine.Archive(ctx.Request.Context(), room, uid)
	})
}

func (me *RoomRoute) method_Unarchive(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	return me.roomAction(ctx, jreq, jres, func(uid, room string) error {
		return me.engine.Unarchive(ctx.Request.Context(), room, uid)
	})
}

func (me *RoomRoute) method_SoftDelete(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	return me.roomAction(ctx, jreq, jres, func(uid, room string) error {
		return me.engine.SoftDelete(ctx.Request.Context(), room, uid)
	})
}

func (me *RoomRoute) method_HardDelete(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	return me.roomAction(ctx, jreq, jres, func(uid, room string) error {
		return me.engine.HardDelete(ctx.Request.Context(), room, uid)
	})
}

type SendMessageParams struct {
	UID  string `json:"uid"`
	Room string `json:"room"`
	Text string `json:"text"`
}

func (me *RoomRoute) method_SendMessage(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *SendMessageParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	msg, err := me.engine.SendMessage(ctx.Request.Context(), params.Room, params.UID, params.Text)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(msg)
	return http.StatusOK
}

type UIDParams struct {
	UID string `json:"uid"`
}

func (me *RoomRoute) method_ListVisibleRooms(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *UIDParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	rooms, err := me.engine.ListVisibleRooms(ctx.Request.Context(), params.UID)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(rooms)
	return http.StatusOK
}

func (me *RoomRoute) method_ListArchivedRooms(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *UIDParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	rooms, err := me.engine.ListArchivedRooms(ctx.Request.Context(), params.UID)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(rooms)
	return http.StatusOK
}

func (me *RoomRoute) method_ListMessages(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *RoomActionParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	messages, err := me.engine.ListMessages(ctx.Request.Context(), params.Room, params.UID)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(messages)
	return http.StatusOK
}
