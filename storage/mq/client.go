package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"SkillSwap/config"
	"SkillSwap/pkg/logger"
)

var (
	conn     *amqp.Connection
	connLock sync.RWMutex
)

// Init 建立连接并声明交换机与队列
func Init() error {
	c, err := amqp.Dial(config.Cfg.GetRabbitMQURL())
	if err != nil {
		return fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := DeclareTopology(ch, config.Cfg.RabbitMQExchange); err != nil {
		_ = c.Close()
		return err
	}

	connLock.Lock()
	conn = c
	connLock.Unlock()

	logger.Logger.Info("RabbitMQ connected",
		zap.String("component", "rabbitmq"),
		zap.String("exchange", config.Cfg.RabbitMQExchange),
	)
	return nil
}

// Connection 返回当前连接，未初始化时为 nil
func Connection() *amqp.Connection {
	connLock.RLock()
	defer connLock.RUnlock()
	return conn
}

func Close(ctx context.Context) error {
	connLock.Lock()
	c := conn
	conn = nil
	connLock.Unlock()

	if c == nil || c.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
