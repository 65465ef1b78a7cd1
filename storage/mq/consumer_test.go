package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermanentIsDetectable(t *testing.T) {
	cause := errors.New("bad payload")
	err := Permanent(cause)

	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, cause, ErrPermanent)
}

func TestConsumeWithoutConnection(t *testing.T) {
	err := Consume(context.Background(), ConsumeOptions{Queue: QueueOnboardingCompleted})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublishWithoutConnection(t *testing.T) {
	err := PublishMessage(context.Background(), "skillswap.events", RoutingKeyOnboardingCompleted, "id-1", map[string]string{"k": "v"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDeadLetterExchange(t *testing.T) {
	assert.Equal(t, "skillswap.events.dlx", DeadLetterExchange("skillswap.events"))
}
