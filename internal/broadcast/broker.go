package broadcast

import (
	"context"
	"strings"
)

type Message struct {
	Topic   string
	Payload []byte
}

// Broker 实时观察用的发布通道：单机用内存，多机用 NATS
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe 返回的 channel 在 ctx 取消或 Close 之后关闭
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}

// TickTopic tick:{symbol}
func TickTopic(symbol string) string { return "tick:" + symbol }

func topicToSubject(topic string) string { return strings.ReplaceAll(topic, ":", ".") }
func subjectToTopic(subj string) string  { return strings.ReplaceAll(subj, ".", ":") }
