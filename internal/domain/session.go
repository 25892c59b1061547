package domain

import "time"

// LiveSession 表示一场预告给会员的直播活动。
// 管理员创建和编辑，会员只读，用来知道什么时候进入哪个房间。
type LiveSession struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:191;not null" json:"name"`
	StartDate   time.Time `gorm:"index;not null" json:"startDate"`
	EndDate     time.Time `gorm:"not null" json:"endDate"`
	Description string    `gorm:"type:text" json:"description"`
	Link        string    `gorm:"size:512" json:"link"` // 外部加入链接（例如视频会议地址）
	RoomID      *uint     `gorm:"index" json:"roomId,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"-"`
}
