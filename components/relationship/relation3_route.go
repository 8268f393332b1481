package relationship

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

type RelationRoute struct {
	engine  *Engine
	limiter *ratelimit.Bucket
}

func NewRelationRoute(engine *Engine, l logr.Logger, limiter *ratelimit.Bucket) RelationRoute {
	Logger = l
	Logger.V(2).Info("NewRelationRoute created")
	return RelationRoute{engine, limiter}
}

func (me *RelationRoute) InitRouteTo(rg *gin.Engine) {
	router := rg.Group("/relations")
	router.POST("/rpc", me.RateLimit, auth.ValidUser, me.RPCHandle)
}

func (me *RelationRoute) RateLimit(ctx *gin.Context) {
	if me.limiter.TakeAvailable(1) == 0 {
		ctx.AbortWithStatus(http.StatusTooManyRequests)
		return
	}
	ctx.Next()
}

func (me *RelationRoute) GetEngine() *Engine {
	return me.engine
}

func (me *RelationRoute) RPCHandle(ctx *gin.Context) {
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
	case "SendRequest":
		statuscode = me.method_SendRequest(ctx, &jreq, jres)
	case "AcceptRequest":
		statuscode = me.method_AcceptRequest(ctx, &jreq, jres)
	case "DeclineRequest":
		statuscode = me.method_DeclineRequest(ctx, &jreq, jres)
	case "RemoveConnection":
		statuscode = me.method_RemoveConnection(ctx, &jreq, jres)
	case "MarkIncomingSeen":
		statuscode = me.method_MarkIncomingSeen(ctx, &jreq, jres)
	case "GetRelation":
		statuscode = me.method_GetRelation(ctx, &jreq, jres)
	case "ListFriends":
		statuscode = me.method_ListFriends(ctx, &jreq, jres)
	case "ListIncoming":
		statuscode = me.method_ListIncoming(ctx, &jreq, jres)
	case "ListSent":
		statuscode = me.method_ListSent(ctx, &jreq, jres)
	case "SaveProfile":
		statuscode = me.method_SaveProfile(ctx, &jreq, jres)
	default:
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}

	if jres.Error != nil {
		Logger.Error(fmt.Errorf(jres.Error.Message), "response with error")
	}
	ctx.JSON(statuscode, jres)
}

// actor resolves the authenticated claims and checks they match the actor
// id named in the params.
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

type SendRequestParams struct {
	UID    string `json:"uid"`
	To     string `json:"to"`
	Name   string `json:"name"`
	ToName string `json:"to_name"`
}

func (me *RelationRoute) method_SendRequest(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *SendRequestParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	req, err := me.engine.SendRequest(ctx.Request.Context(), params.UID, params.To, params.Name, params.ToName)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(req)
	return http.StatusOK
}

type RequestActionParams struct {
	UID  string `json:"uid"`
	From string `json:"from"`
}

func (me *RelationRoute) method_AcceptRequest(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *RequestActionParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	roomID, err := me.engine.AcceptRequest(ctx.Request.Context(), params.UID, params.From)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(gin.H{"room": roomID})
	return http.StatusOK
}

func (me *RelationRoute) method_DeclineRequest(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *RequestActionParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	if err := me.engine.DeclineRequest(ctx.Request.Context(), params.UID, params.From); err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(gin.H{"declined": params.From})
	return http.StatusOK
}

type PeerParams struct {
	UID  string `json:"uid"`
	Peer string `json:"peer"`
}

func (me *RelationRoute) method_RemoveConnection(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *PeerParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	if err := me.engine.RemoveConnection(ctx.Request.Context(), params.UID, params.Peer); err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(gin.H{"removed": params.Peer})
	return http.StatusOK
}

type UIDParams struct {
	UID string `json:"uid"`
}

func (me *RelationRoute) method_MarkIncomingSeen(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *UIDParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	if err := me.engine.MarkIncomingSeen(ctx.Request.Context(), params.UID); err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(gin.H{"seen": true})
	return http.StatusOK
}

func (me *RelationRoute) method_GetRelation(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *PeerParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	relation, err := me.engine.Relation(ctx.Request.Context(), params.UID, params.Peer)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(gin.H{"relation": relation})
	return http.StatusOK
}

func (me *RelationRoute) method_ListFriends(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *UIDParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	friends, err := me.engine.ListFriends(ctx.Request.Context(), params.UID)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(friends)
	return http.StatusOK
}

func (me *RelationRoute) method_ListIncoming(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *UIDParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	requests, err := me.engine.ListIncoming(ctx.Request.Context(), params.UID)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(requests)
	return http.StatusOK
}

func (me *RelationRoute) method_ListSent(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *UIDParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	requests, err := me.engine.ListSent(ctx.Request.Context(), params.UID)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(requests)
	return http.StatusOK
}

type SaveProfileParams struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (me *RelationRoute) method_SaveProfile(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *SaveProfileParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	profile := &Profile{UID: params.UID, Name: params.Name, Email: params.Email}
	if err := me.engine.SaveProfile(ctx.Request.Context(), profile); err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(profile)
	return http.StatusOK
}
