package service

import "fmt"

// RoomChannel 返回房间专属的代理频道，在线人数广播走这里。
// 频道模式 chat:{roomId} 是对客户端的线缆契约，不能改。
func RoomChannel(roomID uint) string {
	return fmt.Sprintf("chat:%d", roomID)
}

// roomMembersKey 是房间在线成员集合的键。
func roomMembersKey(roomID uint) string {
	return fmt.Sprintf("chat:room:%d:members", roomID)
}

// roomStreamKey 是单个用户在单个房间的活跃连接标记键，带 TTL。
// 心跳刷新它；过期意味着连接已经不声不响地消失，由清扫任务收尾。
func roomStreamKey(roomID, userID uint) string {
	return fmt.Sprintf("chat:room:%d:stream:%d", roomID, userID)
}

// activeRoomsKey 索引当前有过加入动作的房间，供清扫任务遍历。
const activeRoomsKey = "chat:rooms:active"
