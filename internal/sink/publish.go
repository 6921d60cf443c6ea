package sink

import (
	"context"
	"fmt"

	"tickflow.com/internal/broadcast"
	"tickflow.com/internal/tick"
)

// Publish 把 tick 以 JSON 发到 tick:{symbol}
type Publish struct {
	name   string
	broker broadcast.Broker
}

func NewPublish(name string, broker broadcast.Broker) *Publish {
	return &Publish{name: name, broker: broker}
}

func (s *Publish) Name() string { return s.name }

func (s *Publish) Open(ctx context.Context) error {
	if s.broker == nil {
		return fmt.Errorf("%s: nil broker", s.name)
	}
	return nil
}

func (s *Publish) Write(ctx context.Context, t tick.Tick) error {
	payload, err := EncodeTick(t)
	if err != nil {
		return err
	}
	return s.broker.Publish(ctx, broadcast.TickTopic(t.Symbol), payload)
}

// Close broker 由外部关闭
func (s *Publish) Close() error { return nil }
