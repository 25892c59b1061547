package redisbroker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/repository"
)

// Broker 是 repository.Broker 接口的 Redis 实现。
//
// 整个进程只持有两份共享资源：client 承担发布和数据命令，
// pubsub 是唯一一条订阅连接，所有频道的订阅都复用它，
// 由一个分发 goroutine 把收到的消息路由到各频道的处理函数。
type Broker struct {
	client *redis.Client

	mu        sync.RWMutex
	connected bool
	pubsub    *redis.PubSub
	handlers  map[string][]func(payload []byte)

	// cancel 停止分发 goroutine
	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建 Broker 实例。此时不建立任何连接，必须先调用 Connect。
func New(client *redis.Client) *Broker {
	if client == nil {
		panic("redis client cannot be nil for Broker")
	}
	return &Broker{
		client:   client,
		handlers: make(map[string][]func(payload []byte)),
	}
}

// Connect 建立到代理的连接。幂等：已连接时直接返回 nil。
// 订阅连接在这里创建一次，之后 Subscribe 只是往上面追加频道。
func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}

	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping failed: %v", repository.ErrBrokerUnavailable, err)
	}

	// 创建空订阅连接，频道由后续 Subscribe 调用追加
	b.pubsub = b.client.Subscribe(ctx)

	dispatchCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.dispatch(dispatchCtx)

	b.connected = true
	logrus.WithField("component", "broker").Info("Broker connected")
	return nil
}

// Close 关闭订阅连接并停止分发。发布用的 client 由创建方负责关闭。
func (b *Broker) Close() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	b.cancel()
	pubsub := b.pubsub
	done := b.done
	b.mu.Unlock()

	err := pubsub.Close()
	<-done
	logrus.WithField("component", "broker").Info("Broker closed")
	return err
}

// dispatch 从共享订阅连接读取消息并路由到各频道的处理函数。
// go-redis 在连接断开后会自动重连并重放订阅，这里只需要持续读取。
func (b *Broker) dispatch(ctx context.Context) {
	defer close(b.done)
	log := logrus.WithField("component", "broker")

	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				log.Info("Broker subscribe channel closed, dispatch loop exiting")
				return
			}
			b.mu.RLock()
			handlers := make([]func([]byte), len(b.handlers[msg.Channel]))
			copy(handlers, b.handlers[msg.Channel])
			b.mu.RUnlock()

			payload := []byte(msg.Payload)
			for _, h := range handlers {
				b.safeInvoke(msg.Channel, h, payload)
			}
		}
	}
}

// safeInvoke 隔离单个处理函数的 panic，避免一个订阅者拖垮分发循环。
func (b *Broker) safeInvoke(channel string, h func([]byte), payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"component": "broker",
				"channel":   channel,
				"panic":     r,
			}).Error("Broker message handler panicked")
		}
	}()
	h(payload)
}

// requireConnected 返回连接未就绪的错误，供各操作统一检查。
func (b *Broker) requireConnected() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		return repository.ErrNotConnected
	}
	return nil
}

// wrap 将底层 Redis 错误统一映射为 ErrBrokerUnavailable，
// 保留原始错误文本便于诊断。
func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", repository.ErrBrokerUnavailable, op, err)
}

// Publish 实现 repository.Broker。
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.requireConnected(); err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"component":    "broker",
			"channel":      channel,
			"payload_size": len(payload),
		}).WithError(err).Error("Redis Publish failed")
		return wrap("publish "+channel, err)
	}
	return nil
}

// Subscribe 实现 repository.Broker。第一个处理函数注册时才真正向
// Redis 发送 SUBSCRIBE，后续处理函数只追加到本地路由表。
func (b *Broker) Subscribe(channel string, handler func(payload []byte)) error {
	if handler == nil {
		return fmt.Errorf("broker: nil handler for channel %s", channel)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return repository.ErrNotConnected
	}

	if len(b.handlers[channel]) == 0 {
		if err := b.pubsub.Subscribe(context.Background(), channel); err != nil {
			return wrap("subscribe "+channel, err)
		}
	}
	b.handlers[channel] = append(b.handlers[channel], handler)
	logrus.WithFields(logrus.Fields{"component": "broker", "channel": channel}).
		Debug("Channel handler registered")
	return nil
}

// Unsubscribe 实现 repository.Broker。
func (b *Broker) Unsubscribe(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return repository.ErrNotConnected
	}
	if len(b.handlers[channel]) == 0 {
		return nil // 未订阅，按无操作处理
	}
	delete(b.handlers, channel)
	if err := b.pubsub.Unsubscribe(context.Background(), channel); err != nil {
		return wrap("unsubscribe "+channel, err)
	}
	return nil
}

// AddMember 实现 repository.Broker。
// SADD 之后重新读取 SCARD：广播的计数必须是写后的真实集合大小。
func (b *Broker) AddMember(ctx context.Context, key, member string) (int64, error) {
	if err := b.requireConnected(); err != nil {
		return 0, err
	}
	pipe := b.client.Pipeline()
	pipe.SAdd(ctx, key, member)
	cardCmd := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, wrap("sadd "+key, err)
	}
	return cardCmd.Val(), nil
}

// RemoveMember 实现 repository.Broker。返回 SREM 的结果，
// 即实际被移除的成员数量，调用方据此判断离开是否是幂等重放。
func (b *Broker) RemoveMember(ctx context.Context, key, member string) (int64, error) {
	if err := b.requireConnected(); err != nil {
		return 0, err
	}
	removed, err := b.client.SRem(ctx, key, member).Result()
	if err != nil {
		return 0, wrap("srem "+key, err)
	}
	return removed, nil
}

// Cardinality 实现 repository.Broker。
func (b *Broker) Cardinality(ctx context.Context, key string) (int64, error) {
	if err := b.requireConnected(); err != nil {
		return 0, err
	}
	count, err := b.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, wrap("scard "+key, err)
	}
	return count, nil
}

// Members 实现 repository.Broker。
func (b *Broker) Members(ctx context.Context, key string) ([]string, error) {
	if err := b.requireConnected(); err != nil {
		return nil, err
	}
	members, err := b.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrap("smembers "+key, err)
	}
	return members, nil
}

// SetKey 实现 repository.Broker。
func (b *Broker) SetKey(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := b.requireConnected(); err != nil {
		return err
	}
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap("set "+key, err)
	}
	return nil
}

// KeyExists 实现 repository.Broker。
func (b *Broker) KeyExists(ctx context.Context, key string) (bool, error) {
	if err := b.requireConnected(); err != nil {
		return false, err
	}
	n, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrap("exists "+key, err)
	}
	return n > 0, nil
}

// DeleteKey 实现 repository.Broker。
func (b *Broker) DeleteKey(ctx context.Context, keys ...string) error {
	if err := b.requireConnected(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return wrap("del", err)
	}
	return nil
}
