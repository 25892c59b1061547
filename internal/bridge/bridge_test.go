package bridge_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Moonflower-labs/livechat/internal/bridge"
	"github.com/Moonflower-labs/livechat/internal/bus"
	"github.com/Moonflower-labs/livechat/internal/repository"
	"github.com/Moonflower-labs/livechat/internal/repository/mocks"
)

// startBridge 挂接一个桥并捕获它注册到代理的入站处理函数。
func startBridge(t *testing.T, b *bus.Bus, broker *mocks.Broker) func([]byte) {
	t.Helper()
	var fromBroker func([]byte)
	broker.On("Subscribe", "chat", mock.Anything).
		Run(func(args mock.Arguments) {
			fromBroker = args.Get(1).(func([]byte))
		}).Return(nil)

	br := bridge.New(b, broker, bus.TopicChat, "chat")
	require.NoError(t, br.Start(context.Background()))
	require.NotNil(t, fromBroker)
	return fromBroker
}

func TestBridge_LocalEventForwardedExactlyOnce(t *testing.T) {
	b := bus.New()
	broker := new(mocks.Broker)
	payload, _ := json.Marshal(map[string]any{"id": 7})
	broker.On("Publish", mock.Anything, "chat", []byte(payload)).Return(nil).Once()

	fromBroker := startBridge(t, b, broker)

	b.Emit(bus.TopicChat, bus.Event{Source: bus.SourceLocal, Payload: payload})

	// 模拟代理把同一条消息回传给 N 个进程的本地总线：
	// 回传事件带代理来源标记，桥不会再次发布
	for i := 0; i < 3; i++ {
		fromBroker(payload)
	}

	broker.AssertNumberOfCalls(t, "Publish", 1)
}

func TestBridge_BrokerMessageEmittedLocallyWithBrokerSource(t *testing.T) {
	b := bus.New()
	broker := new(mocks.Broker)
	fromBroker := startBridge(t, b, broker)

	var got []bus.Event
	b.On(bus.TopicChat, func(ev bus.Event) { got = append(got, ev) })

	payload, _ := json.Marshal(map[string]any{"id": 42})
	fromBroker(payload)

	require.Len(t, got, 1)
	assert.Equal(t, bus.SourceBroker, got[0].Source)
	assert.JSONEq(t, string(payload), string(got[0].Payload))
}

func TestBridge_PublishFailureKeepsLocalDelivery(t *testing.T) {
	b := bus.New()
	broker := new(mocks.Broker)
	broker.On("Publish", mock.Anything, "chat", mock.Anything).
		Return(repository.ErrBrokerUnavailable)
	startBridge(t, b, broker)

	delivered := 0
	b.On(bus.TopicChat, func(bus.Event) { delivered++ })

	// 代理不可用时本地订阅者仍然收到事件
	require.NotPanics(t, func() {
		b.Emit(bus.TopicChat, bus.Event{Source: bus.SourceLocal, Payload: []byte(`{"id":1}`)})
	})
	assert.Equal(t, 1, delivered)
}

func TestBridge_StopDetachesLocalForwarder(t *testing.T) {
	b := bus.New()
	broker := new(mocks.Broker)
	broker.On("Unsubscribe", "chat").Return(nil)

	var fromBroker func([]byte)
	broker.On("Subscribe", "chat", mock.Anything).
		Run(func(args mock.Arguments) { fromBroker = args.Get(1).(func([]byte)) }).
		Return(nil)
	_ = fromBroker

	br := bridge.New(b, broker, bus.TopicChat, "chat")
	require.NoError(t, br.Start(context.Background()))
	br.Stop()

	b.Emit(bus.TopicChat, bus.Event{Source: bus.SourceLocal, Payload: []byte(`{"id":2}`)})
	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	broker.AssertCalled(t, "Unsubscribe", "chat")
}
