package broadcast

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
)

type NatsBroker struct {
	nc *nats.Conn
}

func NewNatsBroker(url string, opts ...nats.Option) (*NatsBroker, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBroker{nc: nc}, nil
}

func (b *NatsBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.nc.Publish(topicToSubject(topic), payload)
}

// Subscribe topic 支持 NATS 通配符，例如 tick:* 对应 tick.*
func (b *NatsBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	out := make(chan Message, 8192)
	subs := make([]*nats.Subscription, 0, len(topics))

	// 退订后回调可能还在跑，closed 之后不再往 out 里写
	var (
		mu     sync.RWMutex
		closed bool
	)
	handler := func(m *nats.Msg) {
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			return
		}
		// at-most-once：慢消费者直接丢，避免把 NATS 回调卡死
		select {
		case out <- Message{Topic: subjectToTopic(m.Subject), Payload: m.Data}:
		default:
		}
	}

	for _, t := range topics {
		sub, err := b.nc.Subscribe(topicToSubject(t), handler)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}

	go func() {
		<-ctx.Done()
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

// Flush 等服务端确认所有已发布消息
func (b *NatsBroker) Flush() error { return b.nc.Flush() }

func (b *NatsBroker) Close() error {
	if b.nc == nil {
		return nil
	}
	err := b.nc.Drain()
	b.nc.Close()
	return err
}
