// internal/service/events/publisher.go
package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"lensmart/internal/pkg/logger"
	"lensmart/internal/pkg/mq"
)

// Publisher 发布领域事件
type Publisher interface {
	Publish(ctx context.Context, e Envelope) error
}

// KafkaPublisher 把事件写入 Kafka，trace 上下文随消息头传播
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Envelope) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "marshal event %s", e.Type)
	}
	return mq.ProduceMessage(ctx, p.writer, []byte(e.AggregateID), body)
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// LogPublisher 在未配置 Kafka 时使用，只记录日志
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e Envelope) error {
	logger.Ctx(ctx).Debug().Str("event_type", string(e.Type)).Str("aggregate_id", e.AggregateID).Msg("event published to log")
	return nil
}

// MemoryPublisher 在内存中保存事件，供测试检查
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Envelope
	Err    error
}

func (m *MemoryPublisher) Publish(_ context.Context, e Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryPublisher) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.events...)
}

// Types 返回已发布事件的类型序列
func (m *MemoryPublisher) Types() []Type {
	var out []Type
	for _, e := range m.Events() {
		out = append(out, e.Type)
	}
	return out
}
