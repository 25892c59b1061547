package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/bus"
	"github.com/Moonflower-labs/livechat/internal/service"
)

// streamBuffer 是单个推送连接的事件缓冲。写满说明客户端消费太慢，
// 事件对该连接丢弃，补漏查询负责兜底。
const streamBuffer = 16

// streamHeartbeatInterval 是推送连接续期在线标记的周期，
// 必须明显小于标记的 TTL。
const streamHeartbeatInterval = 30 * time.Second

// ChatHandler 封装了聊天消息相关的 HTTP 处理逻辑
type ChatHandler struct {
	chatService     *service.ChatService
	presenceService *service.PresenceService
	eventBus        *bus.Bus
}

// NewChatHandler 创建 ChatHandler 实例
func NewChatHandler(chatService *service.ChatService, presenceService *service.PresenceService, eventBus *bus.Bus) *ChatHandler {
	if chatService == nil || presenceService == nil || eventBus == nil {
		panic("all dependencies must be non-nil for ChatHandler")
	}
	return &ChatHandler{
		chatService:     chatService,
		presenceService: presenceService,
		eventBus:        eventBus,
	}
}

// SendMessageRequest 定义发送消息请求的结构体
type SendMessageRequest struct {
	RoomID  *uint  `json:"roomId"`
	Message string `json:"message" binding:"required"`
}

// SendMessage 处理发送消息的请求
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: message is required")
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), req.RoomID, &userID, req.Message)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, msg)
}

// Stream 把聊天主题适配成一条长连接的 SSE 推送流。
//
// 注册的总线处理函数只转发代理来源的事件：消息经代理往返后才投递，
// 所有进程（包括发起者所在进程）看到同一条路径，每条消息恰好推送一次。
//
// 可选的 roomId 查询参数把这条连接和一个房间绑定：只要连接活着，
// 在线标记就由它续期，客户端无需再单独调心跳接口。
//
// 处理函数的注销走 defer，客户端中途强断也保证执行；
// 请求上下文取消后不再写任何输出。
func (h *ChatHandler) Stream(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var roomID uint
	if raw := c.Query("roomId"); raw != "" {
		roomID, ok = parseRoomID(c, raw)
		if !ok {
			return
		}
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		ErrorResponse(c, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan []byte, streamBuffer)
	sub := h.eventBus.On(bus.TopicChat, func(ev bus.Event) {
		if ev.Source != bus.SourceBroker {
			return
		}
		select {
		case events <- ev.Payload:
		default:
			// 缓冲满：丢弃，慢客户端用补漏查询追上
		}
	})
	defer h.eventBus.Off(sub)

	logrus.WithField("component", "sse").Debug("Stream connection opened")
	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			logrus.WithField("component", "sse").Debug("Stream connection closed")
			return
		case <-heartbeat.C:
			if roomID != 0 {
				h.presenceService.Heartbeat(ctx, roomID, userID)
			}
		case payload := <-events:
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			flusher.Flush()
			// 有投递活动也顺带续期，安静房间靠上面的定时器
			if roomID != 0 {
				h.presenceService.Heartbeat(ctx, roomID, userID)
			}
		}
	}
}

// MissedMessages 处理断线补漏查询。
// roomId 和 since 都是必填，since 为 RFC3339 时间戳（严格下界）。
func (h *ChatHandler) MissedMessages(c *gin.Context) {
	roomID, ok := parseRoomID(c, c.Query("roomId"))
	if !ok {
		return
	}

	sinceStr := c.Query("since")
	if sinceStr == "" {
		ErrorResponse(c, http.StatusBadRequest, "since is required")
		return
	}
	since, err := time.Parse(time.RFC3339, sinceStr)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "since must be an RFC3339 timestamp")
		return
	}

	messages, err := h.chatService.MissedMessages(c.Request.Context(), roomID, since)
	if err != nil {
		HandleServiceError(c, service.ErrInternalServer)
		return
	}
	SuccessResponse(c, http.StatusOK, messages)
}

// JoinRoomRequest 定义加入房间请求的结构体
type JoinRoomRequest struct {
	RoomID uint `json:"roomId" binding:"required"`
}

// JoinRoom 处理加入房间：加入在线集合并广播新的人数。
func (h *ChatHandler) JoinRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: roomId is required")
		return
	}

	count, _ := h.presenceService.Join(c.Request.Context(), req.RoomID, userID)
	SuccessResponse(c, http.StatusOK, gin.H{"success": true, "count": count})
}

// LeaveRoom 处理离开房间。
//
// roomId 从 url 编码的请求体读取：这个端点通常由页面卸载钩子触发，
// 那个时机不保证能带上自定义头或查询串。离开是幂等的，
// 代理不可用也不让用户侧失败。
func (h *ChatHandler) LeaveRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c, c.PostForm("roomId"))
	if !ok {
		return
	}

	count, _ := h.presenceService.Leave(c.Request.Context(), roomID, userID)
	SuccessResponse(c, http.StatusOK, gin.H{"success": true, "count": count})
}

// Heartbeat 刷新用户在房间里的连接标记。
func (h *ChatHandler) Heartbeat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: roomId is required")
		return
	}

	h.presenceService.Heartbeat(c.Request.Context(), req.RoomID, userID)
	SuccessResponse(c, http.StatusOK, gin.H{"success": true})
}

// parseRoomID 解析房间 ID 参数；缺失或非法时响应 400。
func parseRoomID(c *gin.Context, raw string) (uint, bool) {
	if raw == "" {
		ErrorResponse(c, http.StatusBadRequest, "roomId is required")
		return 0, false
	}
	roomID64, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "roomId must be a positive integer")
		return 0, false
	}
	return uint(roomID64), true
}
