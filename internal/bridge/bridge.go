// Package bridge 把本地事件总线和跨进程代理对接起来，
// 让多个服务实例对同一个逻辑主题保持一致。
package bridge

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Moonflower-labs/livechat/internal/bus"
	"github.com/Moonflower-labs/livechat/internal/repository"
)

// Bridge 对一个逻辑主题做双向转发：
//
//  1. 本地总线上非代理来源的事件转发到代理频道；
//  2. 代理频道收到的消息打上代理来源标记后在本地总线重新发出。
//
// 来源标记是环路保护：代理回传的事件绝不会被再次转发。
// 每个进程只有一条入站订阅和一个出站转发方，标记足以防环。
//
// 本地发出的消息没有本地直达捷径：它经代理往返后才回到本地监听者，
// 包括发起进程自己。所有进程看到相同的投递路径和相对顺序。
type Bridge struct {
	bus     *bus.Bus
	broker  repository.Broker
	topic   string
	channel string

	sub *bus.Subscription
	log *logrus.Entry
}

// New 创建一个 Bridge。topic 是本地总线主题，channel 是代理频道，
// 聊天场景下两者都是 "chat"。
func New(b *bus.Bus, broker repository.Broker, topic, channel string) *Bridge {
	if b == nil || broker == nil {
		panic("bus and broker cannot be nil for Bridge")
	}
	return &Bridge{
		bus:     b,
		broker:  broker,
		topic:   topic,
		channel: channel,
		log: logrus.WithFields(logrus.Fields{
			"component": "bridge",
			"topic":     topic,
		}),
	}
}

// Start 挂接两个方向的转发。代理订阅失败会返回错误；
// 之后运行期的发布失败只记录日志，投递退化为仅本进程，不中断服务。
func (br *Bridge) Start(ctx context.Context) error {
	// 代理 → 本地：打上代理来源标记再发出，本地监听者据此识别回传
	err := br.broker.Subscribe(br.channel, func(payload []byte) {
		br.bus.Emit(br.topic, bus.Event{Source: bus.SourceBroker, Payload: payload})
	})
	if err != nil {
		return err
	}

	// 本地 → 代理：只转发非代理来源的事件
	br.sub = br.bus.On(br.topic, func(ev bus.Event) {
		if ev.Source == bus.SourceBroker {
			return // 已经是代理回传，转发会造成环路
		}
		if err := br.broker.Publish(ctx, br.channel, ev.Payload); err != nil {
			// 代理不可用时投递局限在本进程，等连接恢复即可
			br.log.WithError(err).Error("Failed to forward local event to broker")
		}
	})

	br.log.Info("Bridge started")
	return nil
}

// Stop 摘除两个方向的挂接。
func (br *Bridge) Stop() {
	br.bus.Off(br.sub)
	br.sub = nil
	if err := br.broker.Unsubscribe(br.channel); err != nil {
		br.log.WithError(err).Warn("Failed to unsubscribe bridge channel")
	}
	br.log.Info("Bridge stopped")
}
