package repository

import (
	"context"

	"github.com/Moonflower-labs/livechat/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间。
	// 房间不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindAll 返回全部房间，按创建时间升序。
	FindAll(ctx context.Context) ([]domain.Room, error)

	// Save 保存房间信息。已存在（基于 ID）则更新，否则创建。
	Save(ctx context.Context, room *domain.Room) error

	// Delete 删除房间。房间不存在时返回 ErrRoomNotFound。
	Delete(ctx context.Context, id uint) error
}
