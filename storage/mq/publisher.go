package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	pkgmq "SkillSwap/pkg/mq"
	"SkillSwap/pkg/logger"
)

// ErrNotConnected 尚未建立 RabbitMQ 连接
var ErrNotConnected = errors.New("rabbitmq connection is nil")

var (
	publisherCh *amqp.Channel
	pubMutex    sync.RWMutex
)

func getPublisherChannel() (*amqp.Channel, error) {
	pubMutex.RLock()
	if publisherCh != nil && !publisherCh.IsClosed() {
		ch := publisherCh
		pubMutex.RUnlock()
		return ch, nil
	}
	pubMutex.RUnlock()

	pubMutex.Lock()
	defer pubMutex.Unlock()

	if publisherCh != nil && !publisherCh.IsClosed() {
		return publisherCh, nil
	}

	c := Connection()
	if c == nil {
		return nil, ErrNotConnected
	}

	ch, err := c.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	publisherCh = ch

	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		<-closeChan

		pubMutex.Lock()
		if publisherCh == ch {
			publisherCh = nil
		}
		pubMutex.Unlock()

		logger.Logger.Warn("Publisher channel closed, will recreate on next publish",
			zap.String("component", "rabbitmq"),
		)
	}()

	logger.Logger.Info("Publisher channel created",
		zap.String("component", "rabbitmq"),
	)

	return ch, nil
}

// PublishMessage 发送 JSON 消息，messageID 用于消费端去重
func PublishMessage(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         bodyBytes,
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
	}

	start := time.Now()
	ctx, span := pkgmq.StartPublish(ctx, exchange, routingKey, &msg)

	ch, err := getPublisherChannel()
	if err == nil {
		err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
		if err != nil {
			err = fmt.Errorf("failed to publish message: %w", err)
		}
	}

	pkgmq.Finish(ctx, span, "publish", routingKey, start, err)
	return err
}
