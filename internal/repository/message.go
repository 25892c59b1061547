package repository

import (
	"context"
	"time"

	"github.com/Moonflower-labs/livechat/internal/domain"
)

// MessageRepository 定义了聊天消息的持久化操作。
// 消息是本服务唯一的持久化保证：写入失败必须向上层传播，不允许静默吞掉。
type MessageRepository interface {
	// Save 保存一条新消息，填充 ID 和 CreatedAt。
	Save(ctx context.Context, msg *domain.Message) error

	// FindSince 返回指定房间中创建时间严格晚于 since 的所有消息，
	// 按创建时间升序。没有符合条件的消息时返回空切片而不是 nil。
	FindSince(ctx context.Context, roomID uint, since time.Time) ([]domain.Message, error)

	// DeleteByRoom 删除指定房间的全部消息（管理端"清空聊天"）。
	// 返回删除的行数。
	DeleteByRoom(ctx context.Context, roomID uint) (int64, error)
}
