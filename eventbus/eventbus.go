// Package eventbus 把已提交的金库事件分发给进程内订阅者（日志、指标、推送等）。
package eventbus

import (
	"fmt"
	"sync/atomic"

	"custody/logs"
	"custody/vault"

	evbus "github.com/asaskevich/EventBus"
)

// TopicAll 所有事件都会额外发布到这个主题
const TopicAll = "vault:*"

// Topic 某类事件的主题名
func Topic(kind vault.EventKind) string {
	return "vault:" + string(kind)
}

// Handler 事件订阅回调
type Handler func(ev vault.Event)

// Bus 基于 asaskevich/EventBus 的事件总线，实现 vault.EventSink
type Bus struct {
	bus       evbus.Bus
	published atomic.Uint64
	lastSeq   atomic.Uint64
}

var _ vault.EventSink = (*Bus)(nil)

func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// Publish 同步订阅者在调用方 goroutine 中执行，异步订阅者各自排队
func (b *Bus) Publish(ev vault.Event) {
	b.published.Add(1)
	b.lastSeq.Store(ev.Seq)
	b.bus.Publish(Topic(ev.Kind), ev)
	b.bus.Publish(TopicAll, ev)
}

// Subscribe 订阅某类事件；kind 为空表示订阅全部
func (b *Bus) Subscribe(kind vault.EventKind, fn Handler) error {
	if fn == nil {
		return fmt.Errorf("nil handler for %q", kind)
	}
	return b.bus.Subscribe(topicFor(kind), fn)
}

// SubscribeAsync 异步订阅；同一订阅者内事件按发布顺序处理
func (b *Bus) SubscribeAsync(kind vault.EventKind, fn Handler) error {
	if fn == nil {
		return fmt.Errorf("nil handler for %q", kind)
	}
	return b.bus.SubscribeAsync(topicFor(kind), fn, true)
}

// Unsubscribe 取消订阅，fn 必须是订阅时传入的同一个函数
func (b *Bus) Unsubscribe(kind vault.EventKind, fn Handler) error {
	return b.bus.Unsubscribe(topicFor(kind), fn)
}

// HasSubscribers 主题上是否有订阅者
func (b *Bus) HasSubscribers(kind vault.EventKind) bool {
	return b.bus.HasCallback(topicFor(kind))
}

// WaitAsync 等待所有异步回调处理完
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}

// Stats 已发布的事件数和最后一个序号
func (b *Bus) Stats() (published, lastSeq uint64) {
	return b.published.Load(), b.lastSeq.Load()
}

// LogEvents 订阅全部事件并写日志
func (b *Bus) LogEvents() error {
	return b.SubscribeAsync("", func(ev vault.Event) {
		switch ev.Kind {
		case vault.EventTokenDeposited, vault.EventTokenWithdrawn:
			logs.Info("[Event] #%d %s caller=%s asset=%s amount=%s op=%s",
				ev.Seq, ev.Kind, ev.Caller, ev.Asset, ev.Amount, ev.OpID)
		case vault.EventTokenWhitelisted:
			logs.Info("[Event] #%d %s asset=%s", ev.Seq, ev.Kind, ev.Asset)
		case vault.EventAdminTransferred:
			logs.Info("[Event] #%d %s %s -> %s", ev.Seq, ev.Kind, ev.Previous, ev.NewAdmin)
		default:
			logs.Info("[Event] #%d %s", ev.Seq, ev.Kind)
		}
	})
}

func topicFor(kind vault.EventKind) string {
	if kind == "" {
		return TopicAll
	}
	return Topic(kind)
}
