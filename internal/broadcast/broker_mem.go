package broadcast

import (
	"context"
	"errors"
	"sync"
)

var ErrBrokerClosed = errors.New("broker closed")

type MemBroker struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub
	closed bool
	done   chan struct{} // Close 时关闭
	buf    int
}

type memSub struct {
	ch   chan Message
	once sync.Once
}

func (s *memSub) close() { s.once.Do(func() { close(s.ch) }) }

// NewMemBroker buf 为每个订阅者的缓冲大小
func NewMemBroker(buf int) *MemBroker {
	if buf <= 0 {
		buf = 4096
	}
	return &MemBroker{subs: make(map[string][]*memSub), done: make(chan struct{}), buf: buf}
}

func (b *MemBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}

	// fanout：at-most-once，慢订阅者直接丢
	msg := Message{Topic: topic, Payload: payload}
	for _, s := range b.subs[topic] {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	sub := &memSub{ch: make(chan Message, b.buf)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], sub)
	}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(sub, topics)
		case <-b.done:
		}
	}()
	return sub.ch, nil
}

func (b *MemBroker) unsubscribe(sub *memSub, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		list := b.subs[t]
		for i, s := range list {
			if s == sub {
				b.subs[t] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	sub.close()
}

func (b *MemBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	for _, list := range b.subs {
		for _, s := range list {
			s.close()
		}
	}
	b.subs = map[string][]*memSub{}
	return nil
}
