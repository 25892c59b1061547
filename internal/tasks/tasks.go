package tasks

import "encoding/json"

// 定义任务类型常量
const (
	// TypePresenceSweep 周期性清扫在线集合：移除连接标记已过期的成员
	TypePresenceSweep = "presence:sweep"
	// TypeChatClear 后台批量删除一个房间的全部消息
	TypeChatClear = "chat:clear"
)

// ChatClearPayload 定义清空聊天任务的数据结构
type ChatClearPayload struct {
	RoomID uint `json:"roomId"`
}

// NewChatClearTask 创建清空聊天任务的载荷
func NewChatClearTask(roomID uint) ([]byte, error) {
	return json.Marshal(ChatClearPayload{RoomID: roomID})
}

// NewPresenceSweepTask 创建清扫任务的载荷。任务无参数，载荷为空对象。
func NewPresenceSweepTask() ([]byte, error) {
	return json.Marshal(struct{}{})
}
