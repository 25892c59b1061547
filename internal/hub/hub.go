package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/bus"
	"github.com/Moonflower-labs/livechat/internal/repository"
	"github.com/Moonflower-labs/livechat/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string // "register", "unregister", "inbound", "heartbeat", "chat", "broadcast"
	RoomID  uint
	UserID  uint
	Client  *Client
	RawData []byte // inbound 的客户端原始消息，或 chat/broadcast 的出站载荷
}

// inboundMessage 是客户端经 WebSocket 发来的消息格式
type inboundMessage struct {
	Message string `json:"message"`
}

// routedMessage 只取路由需要的字段，载荷本身原样转发
type routedMessage struct {
	RoomID *uint `json:"roomId"`
}

// Hub 维护按房间组织的 WebSocket 客户端集合并协调消息投递。
//
// 出站有两条路：聊天消息从本地总线来（只取代理来源的事件，和 SSE
// 推送流同一条路径），在线人数从房间专属的代理频道来。后者的订阅按
// 房间懒建立：第一个客户端进来时订阅，房间空了就退订。
//
// 注册、注销和广播全部经 messageChan 在 Run goroutine 上串行执行。
// 注销会关闭客户端的发送通道，串行化保证之后不会再有广播写入它。
// 总线和代理的回调只往队列里放消息，不直接触碰房间表。
type Hub struct {
	messageChan chan HubMessage

	// map[roomID]map[*Client]bool
	rooms   map[uint]map[*Client]bool
	roomsMu sync.RWMutex

	// 每个活跃房间一份代理频道订阅
	roomChannels map[uint]bool

	broker          repository.Broker
	eventBus        *bus.Bus
	chatService     *service.ChatService
	presenceService *service.PresenceService

	busSub *bus.Subscription
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(broker repository.Broker, eventBus *bus.Bus, chatService *service.ChatService, presenceService *service.PresenceService) *Hub {
	if broker == nil || eventBus == nil || chatService == nil || presenceService == nil {
		panic("all dependencies must be non-nil for Hub")
	}
	return &Hub{
		messageChan:     make(chan HubMessage, 512),
		rooms:           make(map[uint]map[*Client]bool),
		roomChannels:    make(map[uint]bool),
		broker:          broker,
		eventBus:        eventBus,
		chatService:     chatService,
		presenceService: presenceService,
	}
}

// Run 启动 Hub 的主事件处理循环。应该在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	// 聊天消息走总线：只认代理来源，保证和 SSE 一样恰好一次。
	// 回调只入队，路由和写出都在下面的循环里做
	h.busSub = h.eventBus.On(bus.TopicChat, func(ev bus.Event) {
		if ev.Source != bus.SourceBroker {
			return
		}
		h.QueueMessage(HubMessage{Type: "chat", RawData: ev.Payload})
	})

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "chat":
			h.routeChatEvent(msg.RawData)
		case "broadcast":
			h.broadcast(msg.RoomID, msg.RawData)
		case "inbound":
			// 异步处理，避免存储写入阻塞 Hub 主循环
			go h.handleInbound(msg)
		case "heartbeat":
			go h.presenceService.Heartbeat(context.Background(), msg.RoomID, msg.UserID)
		default:
			log.Warnf("Hub: Received unknown message type: %s from user %d in room %d", msg.Type, msg.UserID, msg.RoomID)
		}
	}
	log.Info("Hub is shutting down...")
}

// QueueMessage 将消息放入 Hub 的处理队列（非阻塞）。
// 返回 false 表示队列已满，消息被丢弃。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
			"user_id":      msg.UserID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// StopAllSubscriptions 摘除总线处理函数并退订全部房间频道，供优雅关闭调用。
func (h *Hub) StopAllSubscriptions() {
	h.eventBus.Off(h.busSub)
	h.busSub = nil

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	for roomID := range h.roomChannels {
		if err := h.broker.Unsubscribe(service.RoomChannel(roomID)); err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to unsubscribe room channel")
		}
	}
	h.roomChannels = make(map[uint]bool)
	logrus.WithField("component", "hub").Info("Hub subscriptions stopped")
}

// registerClient 处理客户端注册：登记到房间、保证房间频道已订阅、
// 加入在线集合并广播人数。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	roomID, userID := client.RoomID(), client.UserID()
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	h.roomsMu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	needSubscribe := !h.roomChannels[roomID]
	if needSubscribe {
		h.roomChannels[roomID] = true
	}
	h.roomsMu.Unlock()

	if needSubscribe {
		// 房间频道承载在线人数广播，原样转发给房间内的客户端。
		// 回调跑在代理的分发 goroutine 上，只入队
		rid := roomID
		err := h.broker.Subscribe(service.RoomChannel(rid), func(payload []byte) {
			h.QueueMessage(HubMessage{Type: "broadcast", RoomID: rid, RawData: payload})
		})
		if err != nil {
			logCtx.WithError(err).Error("Failed to subscribe room channel, presence frames unavailable")
			h.roomsMu.Lock()
			delete(h.roomChannels, rid)
			h.roomsMu.Unlock()
		}
	}

	go func() {
		if _, err := h.presenceService.Join(context.Background(), roomID, userID); err != nil {
			logCtx.WithError(err).Warn("Presence join failed during register")
		}
	}()
	logCtx.Info("Client registered to Hub")
}

// unregisterClient 处理客户端注销：移出房间、关闭发送通道、
// 退出在线集合；房间空了就退订频道。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	roomID, userID := client.RoomID(), client.UserID()
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	h.roomsMu.Lock()
	roomEmpty := false
	if roomClients, ok := h.rooms[roomID]; ok {
		if _, exists := roomClients[client]; exists {
			delete(roomClients, client)
			close(client.send)
		}
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
			roomEmpty = true
			delete(h.roomChannels, roomID)
		}
	}
	h.roomsMu.Unlock()

	if roomEmpty {
		if err := h.broker.Unsubscribe(service.RoomChannel(roomID)); err != nil {
			logCtx.WithError(err).Warn("Failed to unsubscribe empty room channel")
		}
	}

	go func() {
		if _, err := h.presenceService.Leave(context.Background(), roomID, userID); err != nil {
			logCtx.WithError(err).Warn("Presence leave failed during unregister")
		}
	}()
	logCtx.Info("Client unregistered from Hub")
}

// handleInbound 处理客户端经 WebSocket 发来的聊天消息
func (h *Hub) handleInbound(msg HubMessage) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": msg.RoomID, "user_id": msg.UserID})

	var in inboundMessage
	if err := json.Unmarshal(msg.RawData, &in); err != nil {
		logCtx.WithError(err).Warn("Invalid inbound chat message")
		return
	}

	roomID, userID := msg.RoomID, msg.UserID
	if _, err := h.chatService.SendMessage(context.Background(), &roomID, &userID, in.Message); err != nil {
		logCtx.WithError(err).Error("Failed to process inbound chat message")
	}
}

// routeChatEvent 把一条代理回传的聊天消息路由到对应房间的客户端。
// 没有房间归属的消息广播给所有房间。
func (h *Hub) routeChatEvent(payload []byte) {
	var routed routedMessage
	if err := json.Unmarshal(payload, &routed); err != nil {
		logrus.WithField("component", "hub").WithError(err).Warn("Unroutable chat event payload")
		return
	}

	if routed.RoomID != nil {
		h.broadcast(*routed.RoomID, payload)
		return
	}
	h.roomsMu.RLock()
	roomIDs := make([]uint, 0, len(h.rooms))
	for roomID := range h.rooms {
		roomIDs = append(roomIDs, roomID)
	}
	h.roomsMu.RUnlock()
	for _, roomID := range roomIDs {
		h.broadcast(roomID, payload)
	}
}

// broadcast 将消息发送给指定房间的所有客户端。
// 只在 Run goroutine 上执行：与注销串行，已关闭的发送通道不会再被写入。
func (h *Hub) broadcast(roomID uint, message []byte) {
	h.roomsMu.RLock()
	roomClients := h.rooms[roomID]
	clientsToSend := make([]*Client, 0, len(roomClients))
	for client := range roomClients {
		clientsToSend = append(clientsToSend, client)
	}
	h.roomsMu.RUnlock()

	for _, client := range clientsToSend {
		// 非阻塞发送，单个慢客户端不阻塞广播
		select {
		case client.send <- message:
		default:
			logrus.WithFields(logrus.Fields{
				"room_id":          roomID,
				"receiver_user_id": client.UserID(),
			}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}
