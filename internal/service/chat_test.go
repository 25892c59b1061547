package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Moonflower-labs/livechat/internal/bus"
	"github.com/Moonflower-labs/livechat/internal/domain"
	"github.com/Moonflower-labs/livechat/internal/repository/mocks"
)

func uintPtr(v uint) *uint { return &v }

func TestSendMessagePersistsThenEmits(t *testing.T) {
	repo := new(mocks.MessageRepository)
	eventBus := bus.New()
	svc := NewChatService(repo, eventBus)

	var received []bus.Event
	eventBus.On(bus.TopicChat, func(ev bus.Event) {
		received = append(received, ev)
	})

	repo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Message")).
		Run(func(args mock.Arguments) {
			msg := args.Get(1).(*domain.Message)
			msg.ID = 42
			msg.CreatedAt = time.Now()
		}).Return(nil).Once()

	msg, err := svc.SendMessage(context.Background(), uintPtr(5), uintPtr(7), "  hello  ")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, uint(42), msg.ID)
	assert.Equal(t, "hello", msg.Message) // 入库前去除首尾空白

	// 本地来源事件恰好发出一次，载荷至少携带消息 ID
	require.Len(t, received, 1)
	assert.Equal(t, bus.SourceLocal, received[0].Source)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(received[0].Payload, &payload))
	assert.EqualValues(t, 42, payload["id"])
	assert.Equal(t, "hello", payload["message"])

	repo.AssertExpectations(t)
}

func TestSendMessageRejectsBlankBody(t *testing.T) {
	repo := new(mocks.MessageRepository)
	svc := NewChatService(repo, bus.New())

	_, err := svc.SendMessage(context.Background(), nil, uintPtr(7), "   ")
	assert.ErrorIs(t, err, ErrInvalidMessage)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSendMessageStorageErrorSuppressesEmit(t *testing.T) {
	repo := new(mocks.MessageRepository)
	eventBus := bus.New()
	svc := NewChatService(repo, eventBus)

	emitted := 0
	eventBus.On(bus.TopicChat, func(bus.Event) { emitted++ })

	repo.On("Save", mock.Anything, mock.Anything).
		Return(errors.New("deadlock found when trying to get lock")).Once()

	_, err := svc.SendMessage(context.Background(), uintPtr(5), uintPtr(7), "hello")
	require.Error(t, err)
	assert.Zero(t, emitted, "failed persistence must not broadcast")
	repo.AssertExpectations(t)
}

func TestMissedMessagesNeverReturnsNil(t *testing.T) {
	repo := new(mocks.MessageRepository)
	svc := NewChatService(repo, bus.New())

	since := time.Now().Add(-time.Hour)
	repo.On("FindSince", mock.Anything, uint(5), since).Return(nil, nil).Once()

	messages, err := svc.MissedMessages(context.Background(), 5, since)
	require.NoError(t, err)
	require.NotNil(t, messages)
	assert.Empty(t, messages)
	repo.AssertExpectations(t)
}

func TestMissedMessagesPreservesOrder(t *testing.T) {
	repo := new(mocks.MessageRepository)
	svc := NewChatService(repo, bus.New())

	since := time.Now().Add(-time.Hour)
	stored := []domain.Message{
		{ID: 1, Message: "first", CreatedAt: since.Add(time.Minute)},
		{ID: 2, Message: "second", CreatedAt: since.Add(2 * time.Minute)},
	}
	repo.On("FindSince", mock.Anything, uint(5), since).Return(stored, nil).Once()

	messages, err := svc.MissedMessages(context.Background(), 5, since)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, uint(1), messages[0].ID)
	assert.Equal(t, uint(2), messages[1].ID)
}

func TestClearRoomReturnsDeletedCount(t *testing.T) {
	repo := new(mocks.MessageRepository)
	svc := NewChatService(repo, bus.New())

	repo.On("DeleteByRoom", mock.Anything, uint(5)).Return(int64(12), nil).Once()

	deleted, err := svc.ClearRoom(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
	repo.AssertExpectations(t)
}
