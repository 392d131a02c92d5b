package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/mmeshcher/shipper-client/internal/metrics"
)

// Consumer читает уведомления из топика Kafka в составе группы потребителей.
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	notifier Notifier
	logger   *zap.Logger
}

// NewConsumer подключается к брокерам.
func NewConsumer(brokers []string, groupID, topic string, notifier Notifier, logger *zap.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &Consumer{group: group, topic: topic, notifier: notifier, logger: logger}, nil
}

// Run потребляет сообщения до отмены ctx и закрывает группу.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Warn("kafka consumer error", zap.Error(err))
		}
	}()

	for ctx.Err() == nil {
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				break
			}
			c.logger.Warn("kafka consume failed", zap.Error(err))
		}
	}

	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close consumer group: %w", err)
	}
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.handle(session.Context(), msg)
			session.MarkMessage(msg, "")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	parsed, err := Parse(msg.Value)
	if err != nil {
		metrics.PushMessagesTotal.WithLabelValues("malformed").Inc()
		c.logger.Warn("skip malformed push message",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return
	}

	if err := c.notifier.Notify(ctx, parsed); err != nil {
		metrics.PushMessagesTotal.WithLabelValues("failed").Inc()
		c.logger.Warn("push notification failed", zap.Error(err))
		return
	}
	metrics.PushMessagesTotal.WithLabelValues("delivered").Inc()
}
