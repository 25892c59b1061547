package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/service"
	"github.com/Moonflower-labs/livechat/internal/tasks"
)

// RoomHandler 封装了房间管理相关的 HTTP 处理逻辑（管理端）
type RoomHandler struct {
	roomService *service.RoomService
	asynqClient *asynq.Client
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService, asynqClient *asynq.Client) *RoomHandler {
	if roomService == nil || asynqClient == nil {
		panic("roomService and asynqClient cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService, asynqClient: asynqClient}
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name is required")
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, room)
}

// ListRooms 返回全部房间
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListRooms(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, rooms)
}

// GetRoom 返回单个房间
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := parseRoomID(c, c.Param("id"))
	if !ok {
		return
	}
	room, err := h.roomService.FindRoomByID(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// DeleteRoom 删除房间及其消息
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	roomID, ok := parseRoomID(c, c.Param("id"))
	if !ok {
		return
	}
	if err := h.roomService.DeleteRoom(c.Request.Context(), roomID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"success": true})
}

// ClearChat 把"清空聊天"入队为后台任务。
// 大房间的批量删除不适合占着请求连接做。
func (h *RoomHandler) ClearChat(c *gin.Context) {
	roomID, ok := parseRoomID(c, c.Param("id"))
	if !ok {
		return
	}
	// 先确认房间存在，给管理端一个明确的 404
	if _, err := h.roomService.FindRoomByID(c.Request.Context(), roomID); err != nil {
		HandleServiceError(c, err)
		return
	}

	payload, err := tasks.NewChatClearTask(roomID)
	if err != nil {
		HandleServiceError(c, service.ErrInternalServer)
		return
	}
	info, err := h.asynqClient.EnqueueContext(c.Request.Context(), asynq.NewTask(tasks.TypeChatClear, payload))
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to enqueue chat clear task")
		HandleServiceError(c, service.ErrInternalServer)
		return
	}

	logrus.WithFields(logrus.Fields{"room_id": roomID, "task_id": info.ID}).
		Info("Chat clear task enqueued")
	SuccessResponse(c, http.StatusAccepted, gin.H{"success": true, "taskId": info.ID})
}
