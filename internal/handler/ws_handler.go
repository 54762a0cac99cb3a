package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/roomchat/internal/audit"
	"github.com/weiawesome/wes-io-live/roomchat/internal/auth"
	"github.com/weiawesome/wes-io-live/roomchat/internal/config"
	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
	"github.com/weiawesome/wes-io-live/roomchat/internal/hub"
	"github.com/weiawesome/wes-io-live/roomchat/internal/service"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/log"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/response"
)

type WSHandler struct {
	hub       *hub.Hub
	service   service.ChatService
	validator auth.Validator
	wsCfg     config.WebSocketConfig
	upgrader  websocket.Upgrader
	validate  *validator.Validate
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, v auth.Validator, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:       h,
		service:   svc,
		validator: v,
		wsCfg:     wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.New(),
	}
}

func (h *WSHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/chat/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates the upgrade request and then serves the
// connection until the peer goes away.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	reqCtx := c.Request.Context()

	identity, err := h.validator.Verify(reqCtx, auth.ExtractToken(c.Request))
	if err != nil {
		audit.LogWithDetail(reqCtx, audit.ActionAuthFailed, "", err.Error(), "websocket authentication failed")
		response.Unauthorized(c, "missing or invalid credentials")
		return
	}
	c.Set(log.FieldUserID, identity.UserID)
	c.Set(log.FieldUsername, identity.Username)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(reqCtx)
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	session := domain.NewSession(connID, identity.UserID, identity.Username)
	client := hub.NewClient(connID, h.hub, conn, session, h.wsCfg)

	// The connection outlives the request, so only the logger is carried over.
	ctx := context.WithoutCancel(reqCtx)
	ctx = log.With(ctx, log.FieldConnID, connID)
	ctx = log.With(ctx, log.FieldUserID, identity.UserID)

	h.hub.Register(client)
	audit.Log(ctx, audit.ActionConnect, identity.UserID, "websocket connected")

	go client.WritePump()
	client.ReadPump(func(cl *hub.Client, message []byte) {
		h.handleMessage(ctx, cl, message)
	})

	if err := h.service.HandleDisconnect(ctx, client); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("disconnect cleanup failed")
	}
	h.hub.Unregister(client)
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	l := log.Ctx(ctx)

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		l.Debug().Err(err).Msg("dropping malformed frame")
		return
	}

	err := h.dispatch(ctx, client, base.Type, message)
	switch {
	case err == nil:
	case domain.IsProtocolError(err):
		l.Debug().Err(err).Str(log.FieldEventType, base.Type).Msg("event dropped")
	default:
		l.Error().Err(err).Str(log.FieldEventType, base.Type).Msg("event failed")
	}
}

func (h *WSHandler) dispatch(ctx context.Context, client *hub.Client, msgType string, message []byte) error {
	switch msgType {
	case domain.MsgTypeJoinRoom:
		var msg domain.JoinRoomMessage
		if err := h.decode(message, &msg); err != nil {
			return err
		}
		return h.service.HandleJoinRoom(ctx, client, &msg)

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageMessage
		if err := h.decode(message, &msg); err != nil {
			return err
		}
		return h.service.HandleSendMessage(ctx, client, &msg)

	case domain.MsgTypeTyping, domain.MsgTypeStopTyping:
		var msg domain.TypingMessage
		if err := h.decode(message, &msg); err != nil {
			return err
		}
		return h.service.HandleTyping(ctx, client, &msg)

	case domain.MsgTypeLeaveRoom:
		return h.service.HandleLeaveRoom(ctx, client)

	case domain.MsgTypePing:
		return h.hub.Send(client, &domain.BaseMessage{Type: domain.MsgTypePong})

	default:
		return domain.ErrUnknownType
	}
}

func (h *WSHandler) decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}
