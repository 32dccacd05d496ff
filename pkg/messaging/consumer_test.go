package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

func newTestConsumer() *Consumer {
	return &Consumer{
		queueName: "inventory.user-roster",
		handlers:  make(map[string]MessageHandler),
		logger:    logger.Nop(),
	}
}

func eventBody(t *testing.T, eventType string, data interface{}) []byte {
	t.Helper()
	event, err := NewEvent(eventType, "user-service", "corr-1", data)
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestDispatch_CallsHandlerWithDecodedEvent(t *testing.T) {
	c := newTestConsumer()
	var got UserCreatedEvent
	var corr string
	c.RegisterHandler(EventUserCreated, func(ctx context.Context, event *Event) error {
		corr = CorrelationID(ctx)
		return event.UnmarshalData(&got)
	})

	o := c.dispatch(context.Background(), eventBody(t, EventUserCreated, UserCreatedEvent{
		UserID: "u-1", Name: "Ravi Kumar", Email: "ravi@joitex.in", RoleName: "engineer",
	}), 0)

	assert.Equal(t, outcomeAck, o)
	assert.Equal(t, "Ravi Kumar", got.Name)
	assert.Equal(t, "corr-1", corr)
}

func TestDispatch_Outcomes(t *testing.T) {
	failing := func(ctx context.Context, event *Event) error { return errors.New("db down") }

	tests := []struct {
		name    string
		body    []byte
		retries int
		want    outcome
	}{
		{name: "malformed body is dead-lettered", body: []byte("{not json"), want: outcomeDeadLetter},
		{name: "unknown type is acked", body: eventBody(t, "user.role.changed", map[string]string{}), want: outcomeAck},
		{name: "handler failure is retried", body: eventBody(t, EventUserDeleted, UserDeletedEvent{UserID: "u"}), retries: 2, want: outcomeRetry},
		{name: "handler failure after max retries is dead-lettered", body: eventBody(t, EventUserDeleted, UserDeletedEvent{UserID: "u"}), retries: 3, want: outcomeDeadLetter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConsumer()
			c.RegisterHandler(EventUserDeleted, failing)
			assert.Equal(t, tt.want, c.dispatch(context.Background(), tt.body, tt.retries))
		})
	}
}

func TestGetRetryCount(t *testing.T) {
	assert.Equal(t, 0, getRetryCount(nil))
	assert.Equal(t, 1, getRetryCount(amqp.Table{retryHeader: int32(1)}))
	assert.Equal(t, 2, getRetryCount(amqp.Table{
		"x-death": []interface{}{amqp.Table{"count": int64(2), "queue": "inventory.user-roster"}},
	}))
}

func TestRetryHeaders_BumpsCountAndKeepsOthers(t *testing.T) {
	in := amqp.Table{"trace": "abc"}

	first := retryHeaders(in)
	assert.Equal(t, int32(1), first[retryHeader])
	assert.Equal(t, "abc", first["trace"])
	assert.NotContains(t, in, retryHeader)

	second := retryHeaders(first)
	assert.Equal(t, 2, getRetryCount(second))
}
