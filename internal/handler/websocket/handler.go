package websocket

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/hub"
	"github.com/Moonflower-labs/livechat/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: 生产环境应校验 Origin 白名单
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler 负责将 HTTP 请求升级为 WebSocket 连接并接入 Hub
type Handler struct {
	hub         *hub.Hub
	roomService *service.RoomService
}

// NewHandler 创建 WebSocket 处理器实例
func NewHandler(h *hub.Hub, roomService *service.RoomService) *Handler {
	if h == nil || roomService == nil {
		panic("hub and roomService must be non-nil for websocket Handler")
	}
	return &Handler{hub: h, roomService: roomService}
}

// Serve 处理 GET /ws/chat/:roomId 的 WebSocket 升级请求
func (h *Handler) Serve(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	userID, ok := userIDVal.(uint)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user identity"})
		return
	}

	roomID64, err := strconv.ParseUint(c.Param("roomId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}
	roomID := uint(roomID64)

	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	// 房间必须存在才允许建立连接
	if _, err := h.roomService.FindRoomByID(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		logCtx.WithError(err).Error("Failed to look up room before upgrade")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时自身已写好 HTTP 错误响应
		logCtx.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	client := hub.NewClient(h.hub, conn, roomID, userID)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
		logCtx.Error("Hub queue full, rejecting WebSocket connection")
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	logCtx.Info("WebSocket connection established")
}
