package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个已连接至某个房间的 WebSocket 客户端
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte // 发往客户端的出站消息缓冲
	roomID uint
	userID uint
}

// NewClient 创建一个新的客户端实例
func NewClient(h *Hub, conn *websocket.Conn, roomID, userID uint) *Client {
	if h == nil || conn == nil {
		panic("hub and conn must be non-nil for Client")
	}
	return &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		roomID: roomID,
		userID: userID,
	}
}

// RoomID 返回客户端所在的房间 ID
func (c *Client) RoomID() uint { return c.roomID }

// UserID 返回客户端关联的用户 ID
func (c *Client) UserID() uint { return c.userID }

// ReadPump 从 WebSocket 连接读取消息并转交给 Hub 处理。
// 连接断开时负责发起注销。每个连接只能有一个 reader。
func (c *Client) ReadPump() {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": c.roomID, "user_id": c.userID})
	defer func() {
		c.hub.QueueMessage(HubMessage{Type: "unregister", Client: c})
		c.conn.Close()
		logCtx.Debug("Client ReadPump finished")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// pong 顺带续期在线状态
		c.hub.QueueMessage(HubMessage{Type: "heartbeat", RoomID: c.roomID, UserID: c.userID})
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket unexpected close error")
			}
			break
		}
		c.hub.QueueMessage(HubMessage{
			Type:    "inbound",
			RoomID:  c.roomID,
			UserID:  c.userID,
			Client:  c,
			RawData: raw,
		})
	}
}

// WritePump 将 Hub 广播的消息写入 WebSocket 连接并定期发送 ping。
// 每个连接只能有一个 writer。
func (c *Client) WritePump() {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": c.roomID, "user_id": c.userID})
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Debug("Client WritePump finished")
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了发送通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to WebSocket")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Debug("Failed to write ping message")
				return
			}
		}
	}
}
