package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/repository"
)

// streamKeyTTL 是单个连接标记的生存时间。客户端每 30 秒心跳一次，
// 留出两次丢失的余量。
const streamKeyTTL = 90 * time.Second

// participantsEvent 是在线人数广播的线缆格式：
// {"event":"participants","data":<整数>}，发布在 chat:{roomId} 频道上。
type participantsEvent struct {
	Event string `json:"event"`
	Data  int64  `json:"data"`
}

// PresenceService 维护各房间的在线成员集合并广播人数变化。
//
// 成员状态只存在于代理中，不落库：代理重启后所有房间静默归零，
// 这是接受的限制。集合写操作在代理端原子，人数总是写后重读。
//
// 代理故障的处理原则：加入/离开对用户永远成功，广播缺席只是
// 其他客户端暂时看到过时的人数，等代理恢复即可。
type PresenceService struct {
	broker repository.Broker
}

// NewPresenceService 创建 PresenceService 实例。
func NewPresenceService(broker repository.Broker) *PresenceService {
	if broker == nil {
		panic("broker cannot be nil for PresenceService")
	}
	return &PresenceService{broker: broker}
}

// Join 把用户加入房间的在线集合并广播新的人数。
// 返回广播出去的人数；代理不可用时返回 0 和 nil——动作对用户成功，
// 缺的只是广播。
func (s *PresenceService) Join(ctx context.Context, roomID, userID uint) (int64, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID, "user_id": userID, "operation": "presence.join",
	})

	count, err := s.broker.AddMember(ctx, roomMembersKey(roomID), memberID(userID))
	if err != nil {
		logCtx.WithError(err).Error("Failed to add member to room set")
		return 0, nil
	}

	// 连接标记 + 活跃房间索引都是尽力而为，失败不影响加入
	if err := s.broker.SetKey(ctx, roomStreamKey(roomID, userID), "1", streamKeyTTL); err != nil {
		logCtx.WithError(err).Warn("Failed to set stream key")
	}
	if _, err := s.broker.AddMember(ctx, activeRoomsKey, strconv.FormatUint(uint64(roomID), 10)); err != nil {
		logCtx.WithError(err).Warn("Failed to index active room")
	}

	s.broadcastCount(ctx, roomID, count, logCtx)
	logCtx.WithField("count", count).Info("User joined room")
	return count, nil
}

// Leave 把用户移出房间的在线集合。幂等：用户本就不在集合中时
// 记一条诊断日志但仍然成功返回当前人数。连接标记总是尽力删除。
func (s *PresenceService) Leave(ctx context.Context, roomID, userID uint) (int64, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID, "user_id": userID, "operation": "presence.leave",
	})

	// 无论移除是否生效，连接标记都要清理
	defer func() {
		if err := s.broker.DeleteKey(ctx, roomStreamKey(roomID, userID)); err != nil {
			logCtx.WithError(err).Warn("Failed to delete stream key")
		}
	}()

	removed, err := s.broker.RemoveMember(ctx, roomMembersKey(roomID), memberID(userID))
	if err != nil {
		// 离开是用户请求的唯一副作用，仍然尽力给出一个响应
		logCtx.WithError(err).Error("Failed to remove member from room set")
		return 0, nil
	}

	count, err := s.broker.Cardinality(ctx, roomMembersKey(roomID))
	if err != nil {
		logCtx.WithError(err).Error("Failed to read room cardinality after leave")
		return 0, nil
	}

	if removed > 0 {
		s.broadcastCount(ctx, roomID, count, logCtx)
		logCtx.WithField("count", count).Info("User left room")
	} else {
		// 幂等重放：页面卸载和显式离开可能都触发一次
		logCtx.Debug("Leave for non-member, broadcast skipped")
	}
	return count, nil
}

// Heartbeat 刷新用户连接标记的 TTL。浏览器没机会发 leave 就消失时，
// 标记过期会让清扫任务把该用户移出集合。
func (s *PresenceService) Heartbeat(ctx context.Context, roomID, userID uint) {
	if err := s.broker.SetKey(ctx, roomStreamKey(roomID, userID), "1", streamKeyTTL); err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID, "user_id": userID, "operation": "presence.heartbeat",
		}).WithError(err).Warn("Failed to refresh stream key")
	}
}

// Count 返回房间当前的在线人数。
func (s *PresenceService) Count(ctx context.Context, roomID uint) (int64, error) {
	return s.broker.Cardinality(ctx, roomMembersKey(roomID))
}

// Sweep 遍历活跃房间，把连接标记已过期的成员移出集合并广播修正后的
// 人数。空房间从索引中摘除。由周期任务调用。
func (s *PresenceService) Sweep(ctx context.Context) error {
	log := logrus.WithField("operation", "presence.sweep")

	roomIDs, err := s.broker.Members(ctx, activeRoomsKey)
	if err != nil {
		return err
	}

	for _, roomIDStr := range roomIDs {
		roomID64, err := strconv.ParseUint(roomIDStr, 10, 32)
		if err != nil {
			log.Warnf("Skipping malformed room id in index: %q", roomIDStr)
			continue
		}
		roomID := uint(roomID64)
		logCtx := log.WithField("room_id", roomID)

		members, err := s.broker.Members(ctx, roomMembersKey(roomID))
		if err != nil {
			logCtx.WithError(err).Warn("Failed to list room members")
			continue
		}

		for _, member := range members {
			userID64, err := strconv.ParseUint(member, 10, 32)
			if err != nil {
				continue
			}
			alive, err := s.broker.KeyExists(ctx, roomStreamKey(roomID, uint(userID64)))
			if err != nil || alive {
				continue
			}
			removed, err := s.broker.RemoveMember(ctx, roomMembersKey(roomID), member)
			if err != nil || removed == 0 {
				continue
			}
			count, err := s.broker.Cardinality(ctx, roomMembersKey(roomID))
			if err != nil {
				continue
			}
			s.broadcastCount(ctx, roomID, count, logCtx.WithField("user_id", userID64))
			logCtx.WithFields(logrus.Fields{"user_id": userID64, "count": count}).
				Info("Reaped stale participant")
		}

		// 房间空了就从索引摘除，集合键在代理里自然消失
		count, err := s.broker.Cardinality(ctx, roomMembersKey(roomID))
		if err == nil && count == 0 {
			if _, err := s.broker.RemoveMember(ctx, activeRoomsKey, roomIDStr); err != nil {
				logCtx.WithError(err).Warn("Failed to drop empty room from index")
			}
		}
	}
	return nil
}

// broadcastCount 在房间频道上发布在线人数。失败只记日志。
func (s *PresenceService) broadcastCount(ctx context.Context, roomID uint, count int64, logCtx *logrus.Entry) {
	payload, err := json.Marshal(participantsEvent{Event: "participants", Data: count})
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal participants event")
		return
	}
	if err := s.broker.Publish(ctx, RoomChannel(roomID), payload); err != nil {
		logCtx.WithError(err).Error("Failed to broadcast participant count")
	}
}

func memberID(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
