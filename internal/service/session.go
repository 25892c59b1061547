package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/domain"
	"github.com/Moonflower-labs/livechat/internal/repository"
)

// LiveSessionService 负责直播活动的业务逻辑。
// 管理员增删改，会员查询即将开始的活动来决定何时进入聊天。
type LiveSessionService struct {
	sessionRepo repository.LiveSessionRepository
}

// NewLiveSessionService 创建 LiveSessionService 实例。
func NewLiveSessionService(sessionRepo repository.LiveSessionRepository) *LiveSessionService {
	if sessionRepo == nil {
		panic("sessionRepo cannot be nil for LiveSessionService")
	}
	return &LiveSessionService{sessionRepo: sessionRepo}
}

// CreateSession 创建一场活动。
func (s *LiveSessionService) CreateSession(ctx context.Context, session *domain.LiveSession) error {
	if strings.TrimSpace(session.Name) == "" || session.StartDate.IsZero() || session.EndDate.IsZero() {
		return ErrInvalidInput
	}
	if session.EndDate.Before(session.StartDate) {
		return ErrInvalidInput
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		logrus.WithField("name", session.Name).WithError(err).Error("Failed to create live session")
		return ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{"session_id": session.ID, "name": session.Name}).
		Info("Live session created")
	return nil
}

// UpdateSession 更新已存在的活动。
func (s *LiveSessionService) UpdateSession(ctx context.Context, session *domain.LiveSession) error {
	if session.ID == 0 {
		return ErrInvalidInput
	}
	if _, err := s.FindSessionByID(ctx, session.ID); err != nil {
		return err
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		logrus.WithField("session_id", session.ID).WithError(err).Error("Failed to update live session")
		return ErrInternalServer
	}
	return nil
}

// FindSessionByID 查找单场活动。
func (s *LiveSessionService) FindSessionByID(ctx context.Context, id uint) (*domain.LiveSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		logrus.WithField("session_id", id).WithError(err).Error("Failed to find live session")
		return nil, ErrInternalServer
	}
	return session, nil
}

// ListUpcoming 返回尚未结束的活动，按开始时间升序。
func (s *LiveSessionService) ListUpcoming(ctx context.Context) ([]domain.LiveSession, error) {
	sessions, err := s.sessionRepo.FindUpcoming(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list upcoming sessions")
		return nil, ErrInternalServer
	}
	return sessions, nil
}

// DeleteSession 删除活动。
func (s *LiveSessionService) DeleteSession(ctx context.Context, id uint) error {
	if err := s.sessionRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		logrus.WithField("session_id", id).WithError(err).Error("Failed to delete live session")
		return ErrInternalServer
	}
	logrus.WithField("session_id", id).Info("Live session deleted")
	return nil
}
