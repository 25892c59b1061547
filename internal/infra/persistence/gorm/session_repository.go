package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Moonflower-labs/livechat/internal/domain"
	"github.com/Moonflower-labs/livechat/internal/repository"
)

// GormLiveSessionRepository 是 LiveSessionRepository 接口的 GORM 实现
type GormLiveSessionRepository struct {
	db *gorm.DB
}

// NewGormLiveSessionRepository 创建 GormLiveSessionRepository 实例
func NewGormLiveSessionRepository(db *gorm.DB) *GormLiveSessionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormLiveSessionRepository")
	}
	return &GormLiveSessionRepository{db: db}
}

// FindByID 根据 ID 查找活动
func (r *GormLiveSessionRepository) FindByID(ctx context.Context, id uint) (*domain.LiveSession, error) {
	var session domain.LiveSession
	err := r.db.WithContext(ctx).First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, fmt.Errorf("gorm: find live session by id %d: %w", id, err)
	}
	return &session, nil
}

// FindUpcoming 返回尚未结束的活动，按开始时间升序
func (r *GormLiveSessionRepository) FindUpcoming(ctx context.Context) ([]domain.LiveSession, error) {
	sessions := make([]domain.LiveSession, 0)
	err := r.db.WithContext(ctx).
		Where("end_date > ?", time.Now()).
		Order("start_date asc").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find upcoming live sessions: %w", err)
	}
	return sessions, nil
}

// Save 保存活动信息（创建或更新）
func (r *GormLiveSessionRepository) Save(ctx context.Context, session *domain.LiveSession) error {
	if err := r.db.WithContext(ctx).Save(session).Error; err != nil {
		return fmt.Errorf("gorm: save live session (id: %d): %w", session.ID, err)
	}
	return nil
}

// Delete 删除活动
func (r *GormLiveSessionRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.LiveSession{}, id)
	if result.Error != nil {
		return fmt.Errorf("gorm: delete live session %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}
	return nil
}
