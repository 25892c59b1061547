package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/service"
	"github.com/Moonflower-labs/livechat/internal/tasks"
)

// ChatClearHandler 处理清空聊天任务
type ChatClearHandler struct {
	chatService *service.ChatService
}

// NewChatClearHandler 创建 Handler 实例
func NewChatClearHandler(chatService *service.ChatService) *ChatClearHandler {
	return &ChatClearHandler{chatService: chatService}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ChatClearHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	var payload tasks.ChatClearPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		// 载荷坏了重试也没用
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("room_id", payload.RoomID)

	deleted, err := h.chatService.ClearRoom(ctx, payload.RoomID)
	if err != nil {
		return fmt.Errorf("failed to clear room %d: %w", payload.RoomID, err)
	}
	logCtx.WithField("deleted", deleted).Info("Chat clear task processed")
	return nil
}

// PresenceSweepHandler 处理周期性的在线集合清扫任务
type PresenceSweepHandler struct {
	presenceService *service.PresenceService
}

// NewPresenceSweepHandler 创建 Handler 实例
func NewPresenceSweepHandler(presenceService *service.PresenceService) *PresenceSweepHandler {
	return &PresenceSweepHandler{presenceService: presenceService}
}

// ProcessTask 实现 asynq.Handler 接口。
// 清扫遇到代理故障直接返回错误，交给 asynq 按默认策略重试。
func (h *PresenceSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if err := h.presenceService.Sweep(ctx); err != nil {
		return fmt.Errorf("presence sweep failed: %w", err)
	}
	logrus.WithField("task_type", t.Type()).Debug("Presence sweep task processed")
	return nil
}
