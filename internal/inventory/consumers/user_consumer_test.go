package consumers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/messaging"
)

type memoryStore struct {
	users map[string]*actor.UserCache
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[string]*actor.UserCache{}}
}

func (s *memoryStore) Set(ctx context.Context, user *actor.UserCache) error {
	cp := *user
	s.users[user.UserID] = &cp
	return nil
}

func (s *memoryStore) Get(ctx context.Context, userID string) (*actor.UserCache, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, errors.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (s *memoryStore) Delete(ctx context.Context, userID string) error {
	delete(s.users, userID)
	return nil
}

func newTestConsumer(store userStore) *UserEventConsumer {
	return &UserEventConsumer{userCache: store, logger: logger.Nop()}
}

func event(t *testing.T, eventType string, data interface{}) *messaging.Event {
	t.Helper()
	e, err := messaging.NewEvent(eventType, "user-service", "", data)
	require.NoError(t, err)
	return e
}

func TestUserConsumer_CreatedThenUpdated(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	c := newTestConsumer(store)

	err := c.handleUserCreated(ctx, event(t, messaging.EventUserCreated, messaging.UserCreatedEvent{
		UserID:   "u-1",
		Email:    "ravi@joitex.in",
		Name:     "Ravi",
		RoleName: "engineer",
	}))
	require.NoError(t, err)
	require.Contains(t, store.users, "u-1")
	assert.Equal(t, "Ravi", store.users["u-1"].Name)

	err = c.handleUserUpdated(ctx, event(t, messaging.EventUserUpdated, messaging.UserUpdatedEvent{
		UserID: "u-1",
		Fields: map[string]any{
			"name":      map[string]any{"from": "Ravi", "to": "Ravi Kumar"},
			"role_name": "inventory",
		},
	}))
	require.NoError(t, err)

	u := store.users["u-1"]
	assert.Equal(t, "Ravi Kumar", u.Name)
	assert.Equal(t, "inventory", u.RoleName)
	assert.Equal(t, "ravi@joitex.in", u.Email)
}

func TestUserConsumer_UpdateForUnknownUserIsIgnored(t *testing.T) {
	store := newMemoryStore()
	c := newTestConsumer(store)

	err := c.handleUserUpdated(context.Background(), event(t, messaging.EventUserUpdated, messaging.UserUpdatedEvent{
		UserID: "ghost",
		Fields: map[string]any{"name": "Nobody"},
	}))
	require.NoError(t, err)
	assert.Empty(t, store.users)
}

func TestUserConsumer_Deleted(t *testing.T) {
	store := newMemoryStore()
	store.users["u-2"] = &actor.UserCache{UserID: "u-2", Name: "Asha"}
	c := newTestConsumer(store)

	err := c.handleUserDeleted(context.Background(), event(t, messaging.EventUserDeleted, messaging.UserDeletedEvent{UserID: "u-2"}))
	require.NoError(t, err)
	assert.NotContains(t, store.users, "u-2")
}

func TestApplyField(t *testing.T) {
	name := "old"
	applyField(map[string]any{"name": 42}, "name", &name)
	assert.Equal(t, "old", name)

	applyField(map[string]any{}, "name", &name)
	assert.Equal(t, "old", name)

	applyField(map[string]any{"name": map[string]interface{}{"to": "new"}}, "name", &name)
	assert.Equal(t, "new", name)
}
