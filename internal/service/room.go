package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/domain"
	"github.com/Moonflower-labs/livechat/internal/repository"
)

// RoomService 负责房间管理的业务逻辑。
type RoomService struct {
	roomRepo    repository.RoomRepository
	messageRepo repository.MessageRepository
	broker      repository.Broker
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, messageRepo repository.MessageRepository, broker repository.Broker) *RoomService {
	if roomRepo == nil || messageRepo == nil || broker == nil {
		panic("all dependencies must be non-nil for RoomService")
	}
	return &RoomService{roomRepo: roomRepo, messageRepo: messageRepo, broker: broker}
}

// CreateRoom 创建一个新房间。
func (s *RoomService) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	room := &domain.Room{Name: name}
	if err := s.roomRepo.Save(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrInvalidInput
		}
		logrus.WithField("name", name).WithError(err).Error("Failed to create room")
		return nil, ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{"room_id": room.ID, "name": name}).Info("Room created")
	return room, nil
}

// ListRooms 返回全部房间。
func (s *RoomService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := s.roomRepo.FindAll(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list rooms")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// FindRoomByID 查找房间，供 HTTP 层和 WebSocket 握手验证房间存在。
func (s *RoomService) FindRoomByID(ctx context.Context, roomID uint) (*domain.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to find room")
		return nil, ErrInternalServer
	}
	return room, nil
}

// DeleteRoom 删除房间及其全部消息，并清理代理里的在线状态键。
// 消息删除失败会上抛；在线状态清理是尽力而为。
func (s *RoomService) DeleteRoom(ctx context.Context, roomID uint) error {
	logCtx := logrus.WithField("room_id", roomID)

	if err := s.roomRepo.Delete(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Failed to delete room")
		return ErrInternalServer
	}
	if _, err := s.messageRepo.DeleteByRoom(ctx, roomID); err != nil {
		logCtx.WithError(err).Error("Failed to delete room messages")
		return ErrInternalServer
	}
	if err := s.broker.DeleteKey(ctx, roomMembersKey(roomID)); err != nil {
		logCtx.WithError(err).Warn("Failed to clean presence keys for deleted room")
	}
	logCtx.Info("Room deleted")
	return nil
}
