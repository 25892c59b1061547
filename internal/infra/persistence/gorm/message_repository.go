package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Moonflower-labs/livechat/internal/domain"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Save 保存一条新消息，GORM 回填 ID 和 CreatedAt
func (r *GormMessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("gorm: save message: %w", err)
	}
	return nil
}

// FindSince 查询房间中 created_at 严格晚于 since 的消息，升序
func (r *GormMessageRepository) FindSince(ctx context.Context, roomID uint, since time.Time) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND created_at > ?", roomID, since).
		Order("created_at asc").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find messages for room %d since %v: %w", roomID, since, err)
	}
	return messages, nil
}

// DeleteByRoom 删除房间的全部消息，返回删除的行数
func (r *GormMessageRepository) DeleteByRoom(ctx context.Context, roomID uint) (int64, error) {
	result := r.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&domain.Message{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: delete messages for room %d: %w", roomID, result.Error)
	}
	return result.RowsAffected, nil
}
