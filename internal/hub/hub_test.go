package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Moonflower-labs/livechat/internal/bus"
	"github.com/Moonflower-labs/livechat/internal/repository/mocks"
	"github.com/Moonflower-labs/livechat/internal/service"
)

// newTestHub 组装一个依赖全部打桩的 Hub，代理操作一律成功。
func newTestHub() (*Hub, *mocks.Broker, *bus.Bus) {
	broker := new(mocks.Broker)
	broker.On("Subscribe", mock.Anything, mock.Anything).Return(nil)
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	broker.On("AddMember", mock.Anything, mock.Anything, mock.Anything).Return(int64(1), nil)
	broker.On("RemoveMember", mock.Anything, mock.Anything, mock.Anything).Return(int64(1), nil)
	broker.On("Cardinality", mock.Anything, mock.Anything).Return(int64(0), nil)
	broker.On("SetKey", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	broker.On("DeleteKey", mock.Anything, mock.Anything).Return(nil)

	eventBus := bus.New()
	chatService := service.NewChatService(new(mocks.MessageRepository), eventBus)
	presenceService := service.NewPresenceService(broker)
	return NewHub(broker, eventBus, chatService, presenceService), broker, eventBus
}

func newTestClient(h *Hub, roomID, userID uint) *Client {
	return &Client{hub: h, send: make(chan []byte, 64), roomID: roomID, userID: userID}
}

func (h *Hub) roomSize(roomID uint) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

// 广播与注销并发到达时的投递完整性：注销关闭发送通道，广播与它
// 串行执行，留在房间里的客户端必须收到每一条消息，中途不允许断送。
func TestBroadcastDuringChurnDeliversToRemainingClients(t *testing.T) {
	h, _, _ := newTestHub()
	go h.Run()

	const churning = 128
	const broadcasts = 50

	keeper := newTestClient(h, 1, 999)
	h.QueueMessage(HubMessage{Type: "register", Client: keeper})

	clients := make([]*Client, churning)
	for i := range clients {
		clients[i] = newTestClient(h, 1, uint(i+1))
		h.QueueMessage(HubMessage{Type: "register", Client: clients[i]})
	}
	require.Eventually(t, func() bool {
		return h.roomSize(1) == churning+1
	}, 2*time.Second, 5*time.Millisecond)

	// 广播方和注销方并发排队，Hub 循环负责串行化
	payload := []byte(`{"event":"participants","data":1}`)
	produced := make(chan struct{})
	go func() {
		for i := 0; i < broadcasts; i++ {
			h.QueueMessage(HubMessage{Type: "broadcast", RoomID: 1, RawData: payload})
		}
		close(produced)
	}()
	for _, c := range clients {
		h.QueueMessage(HubMessage{Type: "unregister", Client: c})
	}
	<-produced

	require.Eventually(t, func() bool {
		return h.roomSize(1) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// 幸存的客户端一条不落
	require.Eventually(t, func() bool {
		return len(keeper.send) == broadcasts
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRouteChatEventTargetsRoom(t *testing.T) {
	h, _, eventBus := newTestHub()
	go h.Run()

	inRoom1 := newTestClient(h, 1, 10)
	inRoom2 := newTestClient(h, 2, 20)
	h.QueueMessage(HubMessage{Type: "register", Client: inRoom1})
	h.QueueMessage(HubMessage{Type: "register", Client: inRoom2})
	require.Eventually(t, func() bool {
		return h.roomSize(1) == 1 && h.roomSize(2) == 1
	}, 2*time.Second, 5*time.Millisecond)

	payload := []byte(`{"id":7,"roomId":1,"message":"hi"}`)
	eventBus.Emit(bus.TopicChat, bus.Event{Source: bus.SourceBroker, Payload: payload})

	require.Eventually(t, func() bool {
		return len(inRoom1.send) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, payload, <-inRoom1.send)
	assert.Empty(t, inRoom2.send, "message bound to room 1 must not reach room 2")

	// 本地来源的事件不经 Hub 投递，等代理回传
	eventBus.Emit(bus.TopicChat, bus.Event{Source: bus.SourceLocal, Payload: payload})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, inRoom1.send)
}

func TestUnregisterLastClientUnsubscribesRoomChannel(t *testing.T) {
	h, broker, _ := newTestHub()
	unsubscribed := make(chan string, 1)
	broker.On("Unsubscribe", mock.Anything).
		Run(func(args mock.Arguments) { unsubscribed <- args.String(0) }).
		Return(nil)
	go h.Run()

	client := newTestClient(h, 3, 5)
	h.QueueMessage(HubMessage{Type: "register", Client: client})
	require.Eventually(t, func() bool {
		return h.roomSize(3) == 1
	}, 2*time.Second, 5*time.Millisecond)

	h.QueueMessage(HubMessage{Type: "unregister", Client: client})

	select {
	case channel := <-unsubscribed:
		assert.Equal(t, service.RoomChannel(3), channel)
	case <-time.After(2 * time.Second):
		t.Fatal("room channel was not unsubscribed after the last client left")
	}
	assert.Zero(t, h.roomSize(3))
	broker.AssertCalled(t, "Subscribe", service.RoomChannel(3), mock.Anything)

	// 注销关闭了发送通道
	_, open := <-client.send
	assert.False(t, open)
}
