// Package bus 提供进程内的发布/订阅。它是聊天扇出的本地一跳：
// 同一进程里的所有推送连接都挂在这里，跨进程一致性由 bridge 负责。
package bus

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// 事件来源标记。bridge 靠它防止把代理回传的事件再次转发回代理。
const (
	SourceLocal  = "local"
	SourceBroker = "broker"
)

// TopicChat 是聊天消息使用的总线主题。
const TopicChat = "chat"

// Event 是总线上传递的事件：原始 JSON 载荷加一个来源标记。
// 载荷在本地投递和代理转发之间原样传递，不做二次序列化。
type Event struct {
	Source  string
	Payload json.RawMessage
}

// Handler 处理一个事件。在 Emit 的调用栈上同步执行。
type Handler func(Event)

// Subscription 是 On 返回的注册凭据，传给 Off 取消注册。
// Go 的函数值不可比较，所以用凭据代替"按处理函数引用移除"。
type Subscription struct {
	topic   string
	handler Handler
}

// Bus 是按主题组织的进程内发布/订阅注册表。
// Emit 按注册顺序同步调用处理函数；单个处理函数 panic 不影响后续投递。
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]*Subscription
}

// New 创建一个独立的 Bus 实例，主要给测试用。
// 进程内共享的实例通过 Default 获取。
func New() *Bus {
	return &Bus{topics: make(map[string][]*Subscription)}
}

var (
	defaultBus  *Bus
	defaultOnce sync.Once
)

// Default 返回进程级单例。懒初始化且只初始化一次，
// 保证所有路由处理器和开发期热重载共享同一个实例。
func Default() *Bus {
	defaultOnce.Do(func() {
		defaultBus = New()
	})
	return defaultBus
}

// On 注册一个主题处理函数，返回用于取消注册的凭据。
func (b *Bus) On(topic string, h Handler) *Subscription {
	if h == nil {
		return nil
	}
	sub := &Subscription{topic: topic, handler: h}
	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], sub)
	b.mu.Unlock()
	return sub
}

// Off 取消注册。传入 nil 或未注册的凭据是无操作，不是错误。
func (b *Bus) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.topics[sub.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Subscribers 返回主题下当前注册的处理函数数量，供诊断观察。
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Emit 将事件投递给主题下当前注册的全部处理函数，按注册顺序同步调用。
// 快照当前的注册列表：Emit 期间的 On/Off 对本次投递不生效。
func (b *Bus) Emit(topic string, ev Event) {
	b.mu.RLock()
	subs := make([]*Subscription, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		invoke(topic, sub.handler, ev)
	}
}

// invoke 隔离单个处理函数的 panic。
func invoke(topic string, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"component": "bus",
				"topic":     topic,
				"panic":     r,
			}).Error("Event handler panicked, continuing delivery")
		}
	}()
	h(ev)
}
