package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Moonflower-labs/livechat/internal/domain"
	"github.com/Moonflower-labs/livechat/internal/repository"
	"github.com/Moonflower-labs/livechat/internal/repository/mocks"
)

func validSession() *domain.LiveSession {
	start := time.Now().Add(24 * time.Hour)
	return &domain.LiveSession{
		Name:      "Monthly Q&A",
		StartDate: start,
		EndDate:   start.Add(time.Hour),
	}
}

func TestCreateSessionValidation(t *testing.T) {
	repo := new(mocks.LiveSessionRepository)
	svc := NewLiveSessionService(repo)
	ctx := context.Background()

	blank := validSession()
	blank.Name = "  "
	assert.ErrorIs(t, svc.CreateSession(ctx, blank), ErrInvalidInput)

	noDates := validSession()
	noDates.StartDate = time.Time{}
	assert.ErrorIs(t, svc.CreateSession(ctx, noDates), ErrInvalidInput)

	inverted := validSession()
	inverted.EndDate = inverted.StartDate.Add(-time.Hour)
	assert.ErrorIs(t, svc.CreateSession(ctx, inverted), ErrInvalidInput)

	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestCreateSessionPersists(t *testing.T) {
	repo := new(mocks.LiveSessionRepository)
	svc := NewLiveSessionService(repo)

	repo.On("Save", mock.Anything, mock.AnythingOfType("*domain.LiveSession")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.LiveSession).ID = 2
		}).Return(nil).Once()

	session := validSession()
	require.NoError(t, svc.CreateSession(context.Background(), session))
	assert.Equal(t, uint(2), session.ID)
	repo.AssertExpectations(t)
}

func TestUpdateSessionRequiresExisting(t *testing.T) {
	repo := new(mocks.LiveSessionRepository)
	svc := NewLiveSessionService(repo)

	repo.On("FindByID", mock.Anything, uint(9)).
		Return(nil, repository.ErrSessionNotFound).Once()

	session := validSession()
	session.ID = 9
	assert.ErrorIs(t, svc.UpdateSession(context.Background(), session), ErrSessionNotFound)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestListUpcomingPassesThrough(t *testing.T) {
	repo := new(mocks.LiveSessionRepository)
	svc := NewLiveSessionService(repo)

	upcoming := []domain.LiveSession{{ID: 1, Name: "Monthly Q&A"}}
	repo.On("FindUpcoming", mock.Anything).Return(upcoming, nil).Once()

	sessions, err := svc.ListUpcoming(context.Background())
	require.NoError(t, err)
	assert.Equal(t, upcoming, sessions)
}

func TestDeleteSessionMapsNotFound(t *testing.T) {
	repo := new(mocks.LiveSessionRepository)
	svc := NewLiveSessionService(repo)

	repo.On("Delete", mock.Anything, uint(4)).
		Return(repository.ErrSessionNotFound).Once()

	assert.ErrorIs(t, svc.DeleteSession(context.Background(), 4), ErrSessionNotFound)
}
