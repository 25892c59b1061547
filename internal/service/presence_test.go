package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Moonflower-labs/livechat/internal/repository"
	"github.com/Moonflower-labs/livechat/internal/repository/mocks"
)

// participantsPayload 匹配指定人数的广播载荷
func participantsPayload(t *testing.T, count int64) interface{} {
	t.Helper()
	return mock.MatchedBy(func(payload []byte) bool {
		var ev participantsEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return false
		}
		return ev.Event == "participants" && ev.Data == count
	})
}

func TestPresenceJoinBroadcastsNewCount(t *testing.T) {
	broker := new(mocks.Broker)
	svc := NewPresenceService(broker)
	ctx := context.Background()

	broker.On("AddMember", ctx, roomMembersKey(5), "7").Return(int64(1), nil).Once()
	broker.On("SetKey", ctx, roomStreamKey(5, 7), "1", streamKeyTTL).Return(nil).Once()
	broker.On("AddMember", ctx, activeRoomsKey, "5").Return(int64(1), nil).Once()
	broker.On("Publish", ctx, RoomChannel(5), participantsPayload(t, 1)).Return(nil).Once()

	count, err := svc.Join(ctx, 5, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	broker.AssertExpectations(t)
}

func TestPresenceJoinLeaveSequenceCounts(t *testing.T) {
	broker := new(mocks.Broker)
	svc := NewPresenceService(broker)
	ctx := context.Background()

	broker.On("SetKey", ctx, mock.Anything, "1", streamKeyTTL).Return(nil)
	broker.On("AddMember", ctx, activeRoomsKey, "5").Return(int64(1), nil)
	broker.On("DeleteKey", ctx, mock.Anything).Return(nil)
	broker.On("Publish", ctx, RoomChannel(5), mock.Anything).Return(nil)

	// 两人加入
	broker.On("AddMember", ctx, roomMembersKey(5), "1").Return(int64(1), nil).Once()
	broker.On("AddMember", ctx, roomMembersKey(5), "2").Return(int64(2), nil).Once()

	count, err := svc.Join(ctx, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	count, err = svc.Join(ctx, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 两人先后离开，人数回到 0
	broker.On("RemoveMember", ctx, roomMembersKey(5), "1").Return(int64(1), nil).Once()
	broker.On("Cardinality", ctx, roomMembersKey(5)).Return(int64(1), nil).Once()
	count, err = svc.Leave(ctx, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	broker.On("RemoveMember", ctx, roomMembersKey(5), "2").Return(int64(1), nil).Once()
	broker.On("Cardinality", ctx, roomMembersKey(5)).Return(int64(0), nil).Once()
	count, err = svc.Leave(ctx, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	broker.AssertExpectations(t)
}

func TestPresenceLeaveNonMemberIsIdempotent(t *testing.T) {
	broker := new(mocks.Broker)
	svc := NewPresenceService(broker)
	ctx := context.Background()

	broker.On("DeleteKey", ctx, roomStreamKey(5, 9)).Return(nil).Once()
	broker.On("RemoveMember", ctx, roomMembersKey(5), "9").Return(int64(0), nil).Once()
	broker.On("Cardinality", ctx, roomMembersKey(5)).Return(int64(3), nil).Once()

	count, err := svc.Leave(ctx, 5, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// 没有真正移除就不广播
	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	broker.AssertExpectations(t)
}

func TestPresenceJoinDegradesOnBrokerOutage(t *testing.T) {
	broker := new(mocks.Broker)
	svc := NewPresenceService(broker)
	ctx := context.Background()

	broker.On("AddMember", ctx, roomMembersKey(5), "7").
		Return(int64(0), repository.ErrBrokerUnavailable).Once()

	// 加入对用户成功，只是没有广播
	count, err := svc.Join(ctx, 5, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)
	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	broker.AssertExpectations(t)
}

func TestPresenceLeaveDegradesOnBrokerOutage(t *testing.T) {
	broker := new(mocks.Broker)
	svc := NewPresenceService(broker)
	ctx := context.Background()

	broker.On("DeleteKey", ctx, roomStreamKey(5, 7)).Return(nil).Once()
	broker.On("RemoveMember", ctx, roomMembersKey(5), "7").
		Return(int64(0), errors.New("connection refused")).Once()

	count, err := svc.Leave(ctx, 5, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)
	broker.AssertExpectations(t)
}

func TestPresenceSweepReapsStaleMembers(t *testing.T) {
	broker := new(mocks.Broker)
	svc := NewPresenceService(broker)
	ctx := context.Background()

	broker.On("Members", ctx, activeRoomsKey).Return([]string{"5"}, nil).Once()
	broker.On("Members", ctx, roomMembersKey(5)).Return([]string{"7", "8"}, nil).Once()

	// 7 的连接标记已过期，8 仍存活
	broker.On("KeyExists", ctx, roomStreamKey(5, 7)).Return(false, nil).Once()
	broker.On("KeyExists", ctx, roomStreamKey(5, 8)).Return(true, nil).Once()
	broker.On("RemoveMember", ctx, roomMembersKey(5), "7").Return(int64(1), nil).Once()
	broker.On("Cardinality", ctx, roomMembersKey(5)).Return(int64(1), nil)
	broker.On("Publish", ctx, RoomChannel(5), participantsPayload(t, 1)).Return(nil).Once()

	err := svc.Sweep(ctx)
	require.NoError(t, err)

	// 房间非空，不从索引摘除
	broker.AssertNotCalled(t, "RemoveMember", ctx, activeRoomsKey, "5")
	broker.AssertExpectations(t)
}

func TestPresenceSweepDropsEmptyRoomFromIndex(t *testing.T) {
	broker := new(mocks.Broker)
	svc := NewPresenceService(broker)
	ctx := context.Background()

	broker.On("Members", ctx, activeRoomsKey).Return([]string{"5"}, nil).Once()
	broker.On("Members", ctx, roomMembersKey(5)).Return([]string{}, nil).Once()
	broker.On("Cardinality", ctx, roomMembersKey(5)).Return(int64(0), nil).Once()
	broker.On("RemoveMember", ctx, activeRoomsKey, "5").Return(int64(1), nil).Once()

	err := svc.Sweep(ctx)
	require.NoError(t, err)
	broker.AssertExpectations(t)
}
