package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/bus"
	"github.com/Moonflower-labs/livechat/internal/domain"
	"github.com/Moonflower-labs/livechat/internal/repository"
)

// ChatService 负责消息的收发和补漏查询。
//
// 发送路径：先落库（持久化是本功能对外的唯一保证，失败必须上抛），
// 再以本地来源发到总线。bridge 会把它转发到代理，经代理往返后
// 所有进程（包括本进程）的推送连接才收到这条消息。
type ChatService struct {
	messageRepo repository.MessageRepository
	eventBus    *bus.Bus
}

// NewChatService 创建 ChatService 实例。
func NewChatService(messageRepo repository.MessageRepository, eventBus *bus.Bus) *ChatService {
	if messageRepo == nil || eventBus == nil {
		panic("messageRepo and eventBus cannot be nil for ChatService")
	}
	return &ChatService{messageRepo: messageRepo, eventBus: eventBus}
}

// SendMessage 持久化并广播一条消息。
// roomID/userID 为 nil 表示全站聊天 / 匿名发送。
func (s *ChatService) SendMessage(ctx context.Context, roomID, userID *uint, body string) (*domain.Message, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrInvalidMessage
	}

	msg := &domain.Message{
		Message: body,
		RoomID:  roomID,
		UserID:  userID,
	}
	if err := s.messageRepo.Save(ctx, msg); err != nil {
		logCtx.WithError(err).Error("Failed to persist chat message")
		return nil, fmt.Errorf("save message: %w", err)
	}
	logCtx = logCtx.WithField("message_id", msg.ID)

	payload, err := msg.Encode()
	if err != nil {
		// 消息已经落库，补漏查询能找到它，只是这次推送缺席
		logCtx.WithError(err).Error("Failed to encode message for broadcast")
		return msg, nil
	}

	// 本地来源：bridge 转发到代理，往返后再投递给推送连接
	s.eventBus.Emit(bus.TopicChat, bus.Event{Source: bus.SourceLocal, Payload: payload})
	logCtx.Debug("Message persisted and emitted")
	return msg, nil
}

// MissedMessages 返回房间中创建时间严格晚于 since 的消息，升序。
// 纯查询，无副作用，客户端重连后轮询补漏是安全的。
func (s *ChatService) MissedMessages(ctx context.Context, roomID uint, since time.Time) ([]domain.Message, error) {
	messages, err := s.messageRepo.FindSince(ctx, roomID, since)
	if err != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "since": since}).
			WithError(err).Error("Failed to query missed messages")
		return nil, fmt.Errorf("find messages since %v: %w", since, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// ClearRoom 删除房间的全部消息，返回删除的行数。
func (s *ChatService) ClearRoom(ctx context.Context, roomID uint) (int64, error) {
	deleted, err := s.messageRepo.DeleteByRoom(ctx, roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to clear room messages")
		return 0, fmt.Errorf("clear room %d: %w", roomID, err)
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "deleted": deleted}).Info("Room chat cleared")
	return deleted, nil
}
