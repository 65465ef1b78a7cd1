package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// RoutingKeyOnboardingCompleted 用户完成引导
	RoutingKeyOnboardingCompleted = "onboarding.completed"
	// QueueOnboardingCompleted 发放新人奖励的队列
	QueueOnboardingCompleted = "skillswap.rewards.onboarding_completed"
	// QueueDeadLetter 无法处理的消息
	QueueDeadLetter = "skillswap.dead_letter"
)

// DeadLetterExchange 由主交换机名派生
func DeadLetterExchange(exchange string) string {
	return exchange + ".dlx"
}

// DeclareTopology 声明 topic 交换机、奖励队列及死信队列，重复声明是幂等的
func DeclareTopology(ch *amqp.Channel, exchange string) error {
	dlx := DeadLetterExchange(exchange)

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	if err := ch.ExchangeDeclare(dlx, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", dlx, err)
	}

	if _, err := ch.QueueDeclare(QueueDeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QueueDeadLetter, err)
	}
	if err := ch.QueueBind(QueueDeadLetter, "", dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", QueueDeadLetter, err)
	}

	if _, err := ch.QueueDeclare(QueueOnboardingCompleted, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": dlx,
	}); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QueueOnboardingCompleted, err)
	}
	if err := ch.QueueBind(QueueOnboardingCompleted, RoutingKeyOnboardingCompleted, exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", QueueOnboardingCompleted, err)
	}

	return nil
}
