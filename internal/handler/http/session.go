package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Moonflower-labs/livechat/internal/domain"
	"github.com/Moonflower-labs/livechat/internal/service"
)

// SessionHandler 封装了直播活动相关的 HTTP 处理逻辑
type SessionHandler struct {
	sessionService *service.LiveSessionService
}

// NewSessionHandler 创建 SessionHandler 实例
func NewSessionHandler(sessionService *service.LiveSessionService) *SessionHandler {
	if sessionService == nil {
		panic("sessionService cannot be nil for SessionHandler")
	}
	return &SessionHandler{sessionService: sessionService}
}

// SessionRequest 定义创建/更新活动请求的结构体
type SessionRequest struct {
	Name        string    `json:"name" binding:"required"`
	StartDate   time.Time `json:"startDate" binding:"required"`
	EndDate     time.Time `json:"endDate" binding:"required"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	RoomID      *uint     `json:"roomId"`
}

// CreateSession 处理创建活动的请求（管理端）
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name, startDate and endDate are required")
		return
	}

	session := &domain.LiveSession{
		Name:        req.Name,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Description: req.Description,
		Link:        req.Link,
		RoomID:      req.RoomID,
	}
	if err := h.sessionService.CreateSession(c.Request.Context(), session); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, session)
}

// UpdateSession 处理更新活动的请求（管理端）
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name, startDate and endDate are required")
		return
	}

	session := &domain.LiveSession{
		ID:          sessionID,
		Name:        req.Name,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Description: req.Description,
		Link:        req.Link,
		RoomID:      req.RoomID,
	}
	if err := h.sessionService.UpdateSession(c.Request.Context(), session); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, session)
}

// ListSessions 返回即将开始（尚未结束）的活动
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessionService.ListUpcoming(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, sessions)
}

// GetSession 返回单场活动
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	session, err := h.sessionService.FindSessionByID(c.Request.Context(), sessionID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, session)
}

// DeleteSession 删除活动（管理端）
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	if err := h.sessionService.DeleteSession(c.Request.Context(), sessionID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"success": true})
}

func parseSessionID(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid session ID format")
		return 0, false
	}
	return uint(id64), true
}
