package consumers

import (
	"context"

	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/messaging"
)

// userStore is the part of the user cache the consumer writes to
type userStore interface {
	Set(ctx context.Context, user *actor.UserCache) error
	Get(ctx context.Context, userID string) (*actor.UserCache, error)
	Delete(ctx context.Context, userID string) error
}

// UserEventConsumer keeps the engineer roster in sync with user events
type UserEventConsumer struct {
	consumer  *messaging.Consumer
	userCache userStore
	logger    *logger.Logger
}

// NewUserEventConsumer creates a new user event consumer
func NewUserEventConsumer(rmq *messaging.RabbitMQ, userCacheRepo *repository.UserCacheRepository, log *logger.Logger) (*UserEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "inventory-service.user-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeUserEvents, "user.#"); err != nil {
		return nil, err
	}

	c := &UserEventConsumer{
		consumer:  consumer,
		userCache: userCacheRepo,
		logger:    log,
	}

	consumer.RegisterHandler(messaging.EventUserCreated, c.handleUserCreated)
	consumer.RegisterHandler(messaging.EventUserUpdated, c.handleUserUpdated)
	consumer.RegisterHandler(messaging.EventUserDeleted, c.handleUserDeleted)

	return c, nil
}

// Start starts consuming messages
func (c *UserEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *UserEventConsumer) handleUserCreated(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserCreatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("user_id", data.UserID).
		Str("role", data.RoleName).
		Msg("received user created event")

	return c.userCache.Set(ctx, &actor.UserCache{
		UserID:   data.UserID,
		Name:     data.Name,
		Email:    data.Email,
		RoleName: data.RoleName,
	})
}

func (c *UserEventConsumer) handleUserUpdated(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserUpdatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("user_id", data.UserID).
		Msg("received user updated event")

	existing, err := c.userCache.Get(ctx, data.UserID)
	if errors.Is(err, errors.ErrNotFound) {
		// Never saw the create; nothing to patch
		return nil
	}
	if err != nil {
		return err
	}

	applyField(data.Fields, "name", &existing.Name)
	applyField(data.Fields, "email", &existing.Email)
	applyField(data.Fields, "role_name", &existing.RoleName)

	return c.userCache.Set(ctx, existing)
}

func (c *UserEventConsumer) handleUserDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("user_id", data.UserID).
		Msg("received user deleted event")

	return c.userCache.Delete(ctx, data.UserID)
}

// applyField copies a changed string field. Values arrive either bare or as
// a {"from": ..., "to": ...} diff.
func applyField(fields map[string]any, key string, dst *string) {
	switch v := fields[key].(type) {
	case string:
		*dst = v
	case map[string]interface{}:
		if to, ok := v["to"].(string); ok {
			*dst = to
		}
	}
}
