package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Moonflower-labs/livechat/internal/domain"
	"github.com/Moonflower-labs/livechat/internal/repository"
	"github.com/Moonflower-labs/livechat/internal/repository/mocks"
)

func newRoomService() (*RoomService, *mocks.RoomRepository, *mocks.MessageRepository, *mocks.Broker) {
	roomRepo := new(mocks.RoomRepository)
	messageRepo := new(mocks.MessageRepository)
	broker := new(mocks.Broker)
	return NewRoomService(roomRepo, messageRepo, broker), roomRepo, messageRepo, broker
}

func TestCreateRoomTrimsAndPersists(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService()

	roomRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Room")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Room).ID = 3
		}).Return(nil).Once()

	room, err := svc.CreateRoom(context.Background(), "  General  ")
	require.NoError(t, err)
	assert.Equal(t, uint(3), room.ID)
	assert.Equal(t, "General", room.Name)
	roomRepo.AssertExpectations(t)
}

func TestCreateRoomRejectsBlankName(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService()

	_, err := svc.CreateRoom(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	roomRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestCreateRoomMapsDuplicateName(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService()

	roomRepo.On("Save", mock.Anything, mock.Anything).
		Return(repository.ErrDuplicateEntry).Once()

	_, err := svc.CreateRoom(context.Background(), "General")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFindRoomByIDMapsNotFound(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService()

	roomRepo.On("FindByID", mock.Anything, uint(9)).
		Return(nil, repository.ErrRoomNotFound).Once()

	_, err := svc.FindRoomByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestDeleteRoomRemovesMessagesAndPresenceKeys(t *testing.T) {
	svc, roomRepo, messageRepo, broker := newRoomService()

	roomRepo.On("Delete", mock.Anything, uint(5)).Return(nil).Once()
	messageRepo.On("DeleteByRoom", mock.Anything, uint(5)).Return(int64(8), nil).Once()
	broker.On("DeleteKey", mock.Anything, roomMembersKey(5)).Return(nil).Once()

	err := svc.DeleteRoom(context.Background(), 5)
	require.NoError(t, err)
	roomRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	broker.AssertExpectations(t)
}

func TestDeleteRoomToleratesBrokerCleanupFailure(t *testing.T) {
	svc, roomRepo, messageRepo, broker := newRoomService()

	roomRepo.On("Delete", mock.Anything, uint(5)).Return(nil).Once()
	messageRepo.On("DeleteByRoom", mock.Anything, uint(5)).Return(int64(0), nil).Once()
	broker.On("DeleteKey", mock.Anything, mock.Anything).
		Return(errors.New("connection refused")).Once()

	// 在线状态键清理是尽力而为，失败不让删除失败
	assert.NoError(t, svc.DeleteRoom(context.Background(), 5))
}
