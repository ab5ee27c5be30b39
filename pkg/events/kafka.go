// Package events publishes order lifecycle events to Kafka for
// downstream fulfillment pipelines. Publishing is fire-and-forget from
// the purchase path's point of view: the order is already committed
// when the event goes out.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dealrush/dealrush/seckill"
)

// ErrPublishFailed wraps transport errors from the Kafka writer.
var ErrPublishFailed = errors.New("events: failed to publish")

// OrderCreated is the wire shape of a committed order.
type OrderCreated struct {
	OrderID   int64     `json:"orderId"`
	UserID    int64     `json:"userId"`
	VoucherID int64     `json:"voucherId"`
	CreatedAt time.Time `json:"createdAt"`
}

// KafkaPublisher writes order-created events to one topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and
// topic. Messages are keyed by user id, so one user's orders stay
// ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// PublishOrderCreated emits one event for a committed order.
func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, o seckill.Order) error {
	value, err := json.Marshal(OrderCreated{
		OrderID:   o.ID,
		UserID:    o.UserID,
		VoucherID: o.VoucherID,
		CreatedAt: o.CreatedAt,
	})
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(o.UserID, 10)),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ seckill.OrderPublisher = (*KafkaPublisher)(nil)
