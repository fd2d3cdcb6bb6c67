package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"notifydecision/pkg/metrics"
	"notifydecision/pkg/trace"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger
	// 失败消息重新入队前的等待时间
	requeueDelay time.Duration
}

type deliveryAttemptKey struct{}

// DeliveryAttempt 返回当前消息的投递次数（首次为 1），不在消费上下文中时返回 0
func DeliveryAttempt(ctx context.Context) int64 {
	n, _ := ctx.Value(deliveryAttemptKey{}).(int64)
	return n
}

// WithDeliveryAttempt 把投递次数写入 context
func WithDeliveryAttempt(ctx context.Context, attempt int64) context.Context {
	return context.WithValue(ctx, deliveryAttemptKey{}, attempt)
}

// NewConsumer creates a consumer for a specific routing key. The queue is a
// quorum queue so the broker tracks redeliveries in x-delivery-count.
func NewConsumer(url, name, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url, name+".consumer")
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := DeclareExchange(ch); err != nil {
		return fail(fmt.Errorf("failed to declare exchange: %w", err))
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		amqp091.Table{amqp091.QueueTypeArg: amqp091.QueueTypeQuorum},
	)
	if err != nil {
		return fail(fmt.Errorf("failed to declare queue: %w", err))
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		return fail(fmt.Errorf("failed to bind queue: %w", err))
	}

	// 每次只预取一条，处理完再取下一条
	if err := ch.Qos(1, 0, false); err != nil {
		return fail(fmt.Errorf("failed to set qos: %w", err))
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// SetRequeueDelay 设置失败消息重新入队前的等待时间，避免存储故障时的热循环
func (c *Consumer) SetRequeueDelay(d time.Duration) {
	c.requeueDelay = d
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until ctx is cancelled or the delivery channel closes.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopped", zap.String("queue", c.queue.Name))
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for queue %s", c.queue.Name)
			}
			c.handle(ctx, msg)
		}
	}
}

// handle 保证每条消息都会被 ack 或 nack
func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()
	ctx = trace.WithContext(ctx, traceIDFrom(msg))
	ctx = WithDeliveryAttempt(ctx, deliveryAttempt(msg))

	c.logger.Debug("Received message",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
		zap.Int("message_size", len(msg.Body)),
	)

	// Panic 恢复：确保即使 handler panic 也能正确处理消息
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", c.routingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			if err := msg.Nack(false, true); err != nil {
				c.logger.Error("Failed to nack message after panic",
					zap.String("routing_key", c.routingKey),
					zap.Error(err),
				)
			}
		}
	}()
	defer func() {
		metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, time.Since(start))
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		c.logger.Error("Handler error",
			zap.String("routing_key", c.routingKey),
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		// 业务失败 → 等待后拒绝消息并重新入队，让 MQ 重试
		if c.requeueDelay > 0 {
			select {
			case <-time.After(c.requeueDelay):
			case <-ctx.Done():
			}
		}
		if err := msg.Nack(false, true); err != nil {
			c.logger.Error("Failed to nack message",
				zap.String("routing_key", c.routingKey),
				zap.Error(err),
			)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("Message processed successfully",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)
}

// deliveryAttempt reads the quorum queue x-delivery-count header. Without it
// a redelivered message counts as the second attempt.
func deliveryAttempt(msg amqp091.Delivery) int64 {
	switch v := msg.Headers["x-delivery-count"].(type) {
	case int64:
		return v + 1
	case int32:
		return int64(v) + 1
	case int:
		return int64(v) + 1
	}
	if msg.Redelivered {
		return 2
	}
	return 1
}

func traceIDFrom(msg amqp091.Delivery) string {
	if v, ok := msg.Headers[trace.HeaderName].(string); ok && v != "" {
		return v
	}
	if msg.CorrelationId != "" {
		return msg.CorrelationId
	}
	return trace.GenerateTraceID()
}
