package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Moonflower-labs/livechat/internal/domain"
)

// LiveSessionRepository 是 repository.LiveSessionRepository 的 mock 实现。
type LiveSessionRepository struct {
	mock.Mock
}

func (m *LiveSessionRepository) FindByID(ctx context.Context, id uint) (*domain.LiveSession, error) {
	args := m.Called(ctx, id)
	if s, ok := args.Get(0).(*domain.LiveSession); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *LiveSessionRepository) FindUpcoming(ctx context.Context) ([]domain.LiveSession, error) {
	args := m.Called(ctx)
	if s, ok := args.Get(0).([]domain.LiveSession); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *LiveSessionRepository) Save(ctx context.Context, session *domain.LiveSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *LiveSessionRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
