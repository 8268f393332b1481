package notification

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

type NotificationRoute struct {
	fanout  *Fanout
	limiter *ratelimit.Bucket
}

func NewNotificationRoute(fanout *Fanout, l logr.Logger, limiter *ratelimit.Bucket) NotificationRoute {
	Logger = l
	Logger.V(2).Info("NewNotificationRoute created")
	return NotificationRoute{fanout, limiter}
}

func (me *NotificationRoute) InitRouteTo(rg *gin.Engine) {
	router := rg.Group("/notifications")
	router.POST("/rpc", me.RateLimit, auth.ValidUser, me.RPCHandle)
}

func (me *NotificationRoute) RateLimit(ctx *gin.Context) {
	if me.limiter.TakeAvailable(1) == 0 {
		ctx.AbortWithStatus(http.StatusTooManyRequests)
		return
	}
	ctx.Next()
}

func (me *NotificationRoute) GetFanout() *Fanout {
	return me.fanout
}

func (me *NotificationRoute) RPCHandle(ctx *gin.Context) {
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
	case "ListInbox":
		statuscode = me.method_ListInbox(ctx, &jreq, jres)
	case "MarkRead":
		statuscode = me.method_MarkRead(ctx, &jreq, jres)
	case "MarkAllRead":
		statuscode = me.method_MarkAllRead(ctx, &jreq, jres)
	case "Archive":
		statuscode = me.method_Archive(ctx, &jreq, jres)
	case "UnreadCount":
		statuscode = me.method_UnreadCount(ctx, &jreq, jres)
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

type UIDParams struct {
	UID string `json:"uid"`
}

type EntryParams struct {
	UID string `json:"uid"`
	ID  string `json:"id"`
}

func (me *NotificationRoute) method_ListInbox(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *UIDParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	entries, err := me.fanout.ListInbox(ctx.Request.Context(), params.UID)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(entries)
	return http.StatusOK
}

func (me *NotificationRoute) method_MarkRead(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *EntryParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	if err := me.fanout.MarkRead(ctx.Request.Context(), params.UID, params.ID); err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(gin.H{"id": params.ID, "ok": true})
	return http.StatusOK
}

func (me *NotificationRoute) method_MarkAllRead(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *UIDParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	if err := me.fanout.MarkAllRead(ctx.Request.Context(), params.UID); err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(gin.H{"ok": true})
	return http.StatusOK
}

func (me *NotificationRoute) method_Archive(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *EntryParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	if err := me.fanout.Archive(ctx.Request.Context(), params.UID, params.ID); err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(gin.H{"id": params.ID, "ok": true})
	return http.StatusOK
}

func (me *NotificationRoute) method_UnreadCount(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var params *UIDParams
	if err := json.Unmarshal(jreq.Params, &params); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if _, code, ok := actor(ctx, params.UID, jres); !ok {
		return code
	}

	badge, err := me.fanout.UnreadCount(ctx.Request.Context(), params.UID)
	if err != nil {
		jres.Error = rpcError(err)
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(badge)
	return http.StatusOK
}
