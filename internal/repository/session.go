package repository

import (
	"context"

	"github.com/Moonflower-labs/livechat/internal/domain"
)

// LiveSessionRepository 定义了直播活动的存储和检索操作。
type LiveSessionRepository interface {
	// FindByID 根据 ID 查找活动，不存在时返回 ErrSessionNotFound。
	FindByID(ctx context.Context, id uint) (*domain.LiveSession, error)

	// FindUpcoming 返回结束时间晚于当前时间的活动，按开始时间升序。
	FindUpcoming(ctx context.Context) ([]domain.LiveSession, error)

	// Save 保存活动信息。已存在（基于 ID）则更新，否则创建。
	Save(ctx context.Context, session *domain.LiveSession) error

	// Delete 删除活动，不存在时返回 ErrSessionNotFound。
	Delete(ctx context.Context, id uint) error
}
