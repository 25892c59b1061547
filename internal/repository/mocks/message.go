package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Moonflower-labs/livechat/internal/domain"
)

// MessageRepository 是 repository.MessageRepository 的 mock 实现。
type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepository) FindSince(ctx context.Context, roomID uint, since time.Time) ([]domain.Message, error) {
	args := m.Called(ctx, roomID, since)
	if msgs, ok := args.Get(0).([]domain.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MessageRepository) DeleteByRoom(ctx context.Context, roomID uint) (int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(int64), args.Error(1)
}
