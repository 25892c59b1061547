package repository

import (
	"context"
	"errors"
	"time"
)

// Broker 相关的错误
var (
	// ErrBrokerUnavailable 表示到共享消息代理的连接不可用。
	// 调用方应视为瞬时故障：记录日志并降级，而不是让用户请求失败。
	ErrBrokerUnavailable = errors.New("broker: unavailable")
	// ErrNotConnected 表示在显式 Connect 之前调用了代理操作。
	ErrNotConnected = errors.New("broker: not connected")
)

// Broker 定义了对跨进程消息代理（Redis）的操作。
// 所有进程实例共享同一个代理：pub/sub 用于消息扇出，
// 集合操作承载各房间的在线成员状态。
//
// 集合的写操作在代理端是原子的；基数总是在写之后重新读取，
// 而不是在本地推算，避免读-改-写竞争。
type Broker interface {
	// Publish 将载荷发布到指定频道。
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe 注册一个频道处理函数。同一进程内所有订阅共享一条
	// 订阅连接；handler 在代理的分发 goroutine 中被调用。
	Subscribe(channel string, handler func(payload []byte)) error

	// Unsubscribe 取消对频道的订阅并移除全部处理函数。
	Unsubscribe(channel string) error

	// AddMember 将成员加入集合，返回加入之后的集合基数。
	AddMember(ctx context.Context, key, member string) (int64, error)

	// RemoveMember 将成员移出集合，返回实际移除的成员数量
	//（成员本就不在集合中时为 0）。
	RemoveMember(ctx context.Context, key, member string) (int64, error)

	// Cardinality 返回集合当前的基数。
	Cardinality(ctx context.Context, key string) (int64, error)

	// Members 返回集合的全部成员。
	Members(ctx context.Context, key string) ([]string, error)

	// SetKey 写入一个带 TTL 的键（ttl 为 0 表示不过期）。
	SetKey(ctx context.Context, key, value string, ttl time.Duration) error

	// KeyExists 检查键是否存在。
	KeyExists(ctx context.Context, key string) (bool, error)

	// DeleteKey 删除一个或多个键。键不存在不算错误。
	DeleteKey(ctx context.Context, keys ...string) error
}
