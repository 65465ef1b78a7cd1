package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	pkgmq "SkillSwap/pkg/mq"
	"SkillSwap/pkg/logger"
)

// ErrPermanent 包装后的错误不会重新入队，直接进入死信队列
var ErrPermanent = errors.New("permanent message failure")

// Permanent 标记为不可重试
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Delivery 交给处理函数的消息
type Delivery struct {
	MessageID  string
	RoutingKey string
	Body       []byte
}

type MessageHandler func(ctx context.Context, d Delivery) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费直到 ctx 取消或通道关闭
func Consume(ctx context.Context, opts ConsumeOptions) error {
	c := Connection()
	if c == nil {
		return ErrNotConnected
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info("Stopped consuming messages",
				zap.String("queue", opts.Queue),
				zap.String("consumer_tag", opts.ConsumerTag),
			)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", opts.Queue)
			}
			handle(ctx, opts, msg)
		}
	}
}

func handle(ctx context.Context, opts ConsumeOptions, msg amqp.Delivery) {
	start := time.Now()
	ctx, span := pkgmq.StartConsume(ctx, opts.Queue, msg)

	err := opts.Handler(ctx, Delivery{
		MessageID:  msg.MessageId,
		RoutingKey: msg.RoutingKey,
		Body:       msg.Body,
	})
	pkgmq.Finish(ctx, span, "process", msg.RoutingKey, start, err)

	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			logger.Logger.Error("Failed to ack message", zap.String("queue", opts.Queue), zap.Error(ackErr))
		}
		return
	}

	requeue := !errors.Is(err, ErrPermanent)
	logger.Logger.Error("Failed to process message",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.String("message_id", msg.MessageId),
		zap.Bool("requeue", requeue),
		zap.Error(err),
	)
	if nackErr := msg.Nack(false, requeue); nackErr != nil {
		logger.Logger.Error("Failed to nack message", zap.String("queue", opts.Queue), zap.Error(nackErr))
	}
}
