package domain

import "time"

// Room 表示一个聊天房间。由管理员创建，消息和在线状态都以它为上下文。
// 房间没有自动过期，删除由管理端显式触发。
type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:191;not null" json:"name"` // 房间显示名称
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}
