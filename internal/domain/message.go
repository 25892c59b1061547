package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message 表示一条聊天消息。创建后不可修改，只能由管理端批量清空。
// RoomID/UserID 允许为空：早期的全站聊天消息没有房间归属，匿名消息没有作者。
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Message   string    `gorm:"type:text;not null" json:"message"` // 消息正文
	RoomID    *uint     `gorm:"index" json:"roomId,omitempty"`
	UserID    *uint     `gorm:"index" json:"userId,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// Encode 将消息序列化为广播用的 JSON 载荷。
// 推送流的线缆契约只要求包含 id 字段，这里带上完整记录方便客户端直接渲染。
func (m *Message) Encode() ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("domain: failed to marshal message %d: %w", m.ID, err)
	}
	return payload, nil
}
